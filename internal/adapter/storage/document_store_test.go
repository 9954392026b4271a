package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/domain/docstore"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "docs.posts", Subject("posts"))
	assert.Equal(t, "docs.groups.g1.messages", Subject("groups/g1/messages"))
}

func TestBuildQueryPushesDownContainment(t *testing.T) {
	q := docstore.Collection("groups").
		Where("members", docstore.OpArrayContains, "u1").
		Where("title", docstore.OpEqual, "Jazz Night").
		Where("date", docstore.OpLess, time.Now()).
		OrderBy("lastUpdated", docstore.Descending)

	sql, args, err := buildQuery(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "WHERE collection = $1")
	assert.Contains(t, sql, "data @> $2::jsonb")
	assert.Contains(t, sql, "data @> $3::jsonb")
	assert.NotContains(t, sql, "$4")

	require.Len(t, args, 3)
	assert.Equal(t, "groups", args[0])
	assert.JSONEq(t, `{"members":["u1"]}`, string(args[1].([]byte)))
	assert.JSONEq(t, `{"title":"Jazz Night"}`, string(args[2].([]byte)))
}

func TestBuildQueryNumbersAndBools(t *testing.T) {
	q := docstore.Collection("posts").
		Where("fee", docstore.OpEqual, 0).
		Where("featured", docstore.OpEqual, true).
		Where("category", docstore.OpIn, []string{"Art"})

	_, args, err := buildQuery(q)
	require.NoError(t, err)

	require.Len(t, args, 3)
	assert.JSONEq(t, `{"fee":0}`, string(args[1].([]byte)))
	assert.JSONEq(t, `{"featured":true}`, string(args[2].([]byte)))
}
