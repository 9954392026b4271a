package livesync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type composer struct {
	Text  string
	Reply string
}

func TestOptimisticConfirm(t *testing.T) {
	o := NewOptimistic(composer{Text: "hello", Reply: "hi?"})
	defer o.Close()

	var seenDuringIssue composer
	err := o.Run(context.Background(), Mutation[composer]{
		Name:  "send",
		Apply: func(composer) composer { return composer{} },
		Issue: func(context.Context) error {
			seenDuringIssue = o.State()
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, composer{}, seenDuringIssue)
	assert.Equal(t, composer{}, o.State())
}

func TestOptimisticCompensatesOnFailure(t *testing.T) {
	o := NewOptimistic(composer{Text: "hello", Reply: "hi?"})
	defer o.Close()
	boom := errors.New("write failed")

	err := o.Run(context.Background(), Mutation[composer]{
		Name:  "send",
		Apply: func(composer) composer { return composer{} },
		Issue: func(context.Context) error { return boom },
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, composer{Text: "hello", Reply: "hi?"}, o.State())
}

func TestOptimisticCustomCompensate(t *testing.T) {
	o := NewOptimistic(composer{Text: "hello"})
	defer o.Close()

	err := o.Run(context.Background(), Mutation[composer]{
		Name:  "send",
		Apply: func(composer) composer { return composer{} },
		Issue: func(context.Context) error {
			o.Update(func(c composer) composer {
				c.Reply = "typed meanwhile"
				return c
			})
			return errors.New("nope")
		},
		Compensate: func(current, original composer) composer {
			current.Text = original.Text
			return current
		},
	})
	require.Error(t, err)
	assert.Equal(t, composer{Text: "hello", Reply: "typed meanwhile"}, o.State())
}

func TestOptimisticSignalsChanges(t *testing.T) {
	o := NewOptimistic(0)
	o.Update(func(n int) int { return n + 1 })

	select {
	case <-o.Changes():
	default:
		t.Fatal("expected a change signal")
	}
	assert.Equal(t, uint64(1), o.Version())

	o.Close()
	o.Close()
	o.Update(func(n int) int { return n + 1 })
	assert.Equal(t, 2, o.State())
}
