package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wimbli/internal/adapter/memstore"
	"wimbli/internal/domain/docstore"
	"wimbli/internal/domain/feed"
	"wimbli/internal/domain/geo"
	"wimbli/internal/domain/validation"
	geoService "wimbli/internal/service/geo"
	"wimbli/internal/service/livesync"
	"wimbli/pkg/logging"
)

type failingStore struct {
	docstore.Store
	failUpdates bool
	delay       time.Duration
}

func (f *failingStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if f.failUpdates {
		return errors.New("backend unavailable")
	}
	time.Sleep(f.delay)
	return f.Store.Update(ctx, collection, id, fields)
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func putPost(t *testing.T, s docstore.Store, id string, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), feed.PostsCollection, id, fields))
}

func putUser(t *testing.T, s docstore.Store, id string, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, s.Set(context.Background(), "users", id, fields))
}

func postIDs(posts []feed.Post) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func waitFeed(t *testing.T, sess *Session, ids ...string) livesync.State[feed.Post] {
	t.Helper()
	var st livesync.State[feed.Post]
	require.Eventually(t, func() bool {
		st = sess.State()
		return st.Ready && assert.ObjectsAreEqual(ids, postIDs(st.Items))
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

func newFeedService(store docstore.Store) *Service {
	logger := logging.Discard()
	return NewService(store, livesync.NewDisplayResolver(store, 0, logger), logger)
}

func TestFeedDefaultsToInterests(t *testing.T) {
	store := memstore.New()
	putUser(t, store, "u1", map[string]interface{}{"username": "maya", "interests": []string{"Art"}})
	putPost(t, store, "art", map[string]interface{}{"date": date("2024-06-01"), "category": "Art", "createdBy": "u1"})
	putPost(t, store, "sports", map[string]interface{}{"date": date("2024-05-01"), "category": "Sports", "createdBy": "u1"})

	sess, err := newFeedService(store).Open(context.Background(), "u1", Criteria{Search: "", UseInterests: true})
	require.NoError(t, err)
	defer sess.Close()

	waitFeed(t, sess, "art")
}

func TestFeedCriteriaRefilter(t *testing.T) {
	store := memstore.New()
	putUser(t, store, "u1", map[string]interface{}{"username": "maya", "interests": []string{"Music"}})
	putPost(t, store, "jazz", map[string]interface{}{
		"title": "Jazz Night", "description": "Live trio", "location": "Blue Room",
		"category": "Music", "fee": 15, "date": date("2024-06-03"), "createdBy": "u1",
	})
	putPost(t, store, "gala", map[string]interface{}{
		"title": "Gallery Gala", "description": "Jazz quartet at the opening", "location": "Museum",
		"category": "Art", "fee": 60, "date": date("2024-06-01"), "createdBy": "u1",
	})
	putPost(t, store, "run", map[string]interface{}{
		"title": "Park Run", "description": "5k", "location": "Jazz Park",
		"category": "Fitness", "fee": 0, "date": date("2024-06-02"), "createdBy": "u1",
	})

	sess, err := newFeedService(store).Open(context.Background(), "u1", DefaultCriteria())
	require.NoError(t, err)
	defer sess.Close()
	waitFeed(t, sess, "jazz")

	sess.SetCriteria(Criteria{Search: "JAZZ"})
	assert.Equal(t, []string{"gala", "run", "jazz"}, postIDs(sess.State().Items))

	sess.SetCriteria(Criteria{Search: "jazz", Fee: feed.FeeFree})
	assert.Equal(t, []string{"run"}, postIDs(sess.State().Items))

	sess.SetCriteria(Criteria{Categories: []string{"Art", "Music"}, Fee: feed.FeeOver50})
	assert.Equal(t, []string{"gala"}, postIDs(sess.State().Items))

	sess.SetCriteria(Criteria{Fee: feed.FeeUnder20, Origin: &geo.Location{Latitude: 1, Longitude: 1}, MaxDistanceKm: 1})
	assert.Equal(t, []string{"jazz"}, postIDs(sess.State().Items))
}

func TestFeedSetCriteriaPublishesOnce(t *testing.T) {
	store := memstore.New()
	putPost(t, store, "jazz", map[string]interface{}{
		"title": "Jazz Night", "category": "Music", "fee": 15, "date": date("2024-06-03"),
	})
	putPost(t, store, "gala", map[string]interface{}{
		"title": "Gallery Gala", "category": "Art", "fee": 60, "date": date("2024-06-01"),
	})

	sess, err := newFeedService(store).Open(context.Background(), "u1", DefaultCriteria())
	require.NoError(t, err)
	defer sess.Close()
	waitFeed(t, sess, "gala", "jazz")
	<-sess.Changes()

	before := sess.State().Version
	sess.SetCriteria(Criteria{Categories: []string{"Art", "Music"}, Search: "night", Fee: feed.FeeUnder20})

	st := sess.State()
	assert.Equal(t, before+1, st.Version)
	assert.Equal(t, []string{"jazz"}, postIDs(st.Items))

	select {
	case <-sess.Changes():
	default:
		t.Fatal("expected a change notice")
	}
	select {
	case <-sess.Changes():
		t.Fatal("expected a single change notice")
	default:
	}
}

func TestFeedRefreshReloadsInterests(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	putUser(t, store, "u1", map[string]interface{}{"username": "maya", "interests": []string{"Art"}})
	putPost(t, store, "art", map[string]interface{}{"date": date("2024-06-01"), "category": "Art"})
	putPost(t, store, "music", map[string]interface{}{"date": date("2024-06-02"), "category": "Music"})

	sess, err := newFeedService(store).Open(ctx, "u1", DefaultCriteria())
	require.NoError(t, err)
	defer sess.Close()
	waitFeed(t, sess, "art")

	require.NoError(t, store.Update(ctx, "users", "u1", map[string]interface{}{"interests": []string{"Music"}}))
	assert.Equal(t, []string{"art"}, postIDs(sess.State().Items))

	require.NoError(t, sess.Refresh(ctx))
	assert.Equal(t, []string{"music"}, postIDs(sess.State().Items))
}

func TestFeedResolvesMissingCreatorDisplay(t *testing.T) {
	store := memstore.New()
	putUser(t, store, "u2", map[string]interface{}{"username": "theo", "profilePicture": "t.png"})
	putPost(t, store, "a", map[string]interface{}{"date": date("2024-06-01"), "category": "Art", "createdBy": "u2"})
	putPost(t, store, "b", map[string]interface{}{
		"date": date("2024-06-02"), "category": "Art", "createdBy": "u2", "creatorUsername": "old name",
	})
	putPost(t, store, "c", map[string]interface{}{"date": date("2024-06-03"), "category": "Art", "createdBy": "gone"})

	sess, err := newFeedService(store).Open(context.Background(), "nobody", DefaultCriteria())
	require.NoError(t, err)
	defer sess.Close()

	st := waitFeed(t, sess, "a", "b", "c")
	assert.Equal(t, "theo", st.Items[0].CreatorUsername)
	assert.Equal(t, "t.png", st.Items[0].CreatorProfilePic)
	assert.Equal(t, "old name", st.Items[1].CreatorUsername)
	assert.Equal(t, "Unknown", st.Items[2].CreatorUsername)
	assert.Empty(t, st.Items[2].CreatorProfilePic)
}

func TestFeePredicateTiers(t *testing.T) {
	tests := []struct {
		tier feed.FeeTier
		fee  float64
		want bool
	}{
		{feed.FeeFree, 0, true},
		{feed.FeeFree, 0.5, false},
		{feed.FeeUnder20, 20, true},
		{feed.FeeUnder20, 0, false},
		{feed.FeeUnder50, 20, false},
		{feed.FeeUnder50, 50, true},
		{feed.FeeOver50, 50, false},
		{feed.FeeOver50, 50.01, true},
		{feed.FeeAny, 1000, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FeePredicate(tt.tier)(feed.Post{Fee: tt.fee}), "%s %v", tt.tier, tt.fee)
	}
}

func newPostService(store docstore.Store) *PostService {
	logger := logging.Discard()
	return NewPostService(store, geoService.NewGeoSpatialService(), livesync.NewDisplayResolver(store, 0, logger), logger)
}

func validPost() feed.Post {
	return feed.Post{
		Title:       "Jazz Night",
		Description: "Live trio",
		Category:    "Music",
		Location:    "Blue Room",
		Date:        date("2024-06-03"),
		Fee:         15,
		Coordinates: &geo.Location{Latitude: 37.7749, Longitude: -122.4194},
	}
}

func TestPostCreateDenormalizesCreator(t *testing.T) {
	store := memstore.New()
	putUser(t, store, "u1", map[string]interface{}{"username": "maya", "profilePicture": "m.png"})
	svc := newPostService(store)

	id, err := svc.Create(context.Background(), "u1", validPost())
	require.NoError(t, err)

	p, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "u1", p.CreatedBy)
	assert.Equal(t, "maya", p.CreatorUsername)
	assert.Equal(t, "m.png", p.CreatorProfilePic)
	assert.Len(t, p.Geohash, geo.GeohashPrecision)
	assert.False(t, p.CreatedAt.IsZero())
	assert.True(t, p.Date.Equal(date("2024-06-03")))
}

func TestPostCreateLeavesUnknownCreatorUnresolved(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newPostService(store)

	id, err := svc.Create(ctx, "u9", validPost())
	require.NoError(t, err)

	doc, err := store.Get(ctx, feed.PostsCollection, id)
	require.NoError(t, err)
	_, stored := doc.Data["creatorUsername"]
	assert.False(t, stored)

	p, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Unknown", p.CreatorUsername)

	putUser(t, store, "u9", map[string]interface{}{"username": "ines", "profilePicture": "i.png"})
	p, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ines", p.CreatorUsername)
	assert.Equal(t, "i.png", p.CreatorProfilePic)
}

func TestPostValidationHappensBeforeWrites(t *testing.T) {
	store := memstore.New()
	svc := newPostService(store)

	cases := map[string]func(*feed.Post){
		"title":       func(p *feed.Post) { p.Title = "  " },
		"description": func(p *feed.Post) { p.Description = "" },
		"location":    func(p *feed.Post) { p.Location = "" },
		"date":        func(p *feed.Post) { p.Date = time.Time{} },
		"fee":         func(p *feed.Post) { p.Fee = -1 },
		"category":    func(p *feed.Post) { p.Category = "Knitting" },
	}
	for field, mutate := range cases {
		p := validPost()
		mutate(&p)
		_, err := svc.Create(context.Background(), "u1", p)

		var verr *validation.Error
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	p := validPost()
	p.Coordinates = &geo.Location{Latitude: 200}
	_, err := svc.Create(context.Background(), "u1", p)
	assert.ErrorIs(t, err, geo.ErrInvalidCoordinates)

	posts, err := store.Query(context.Background(), docstore.Collection(feed.PostsCollection))
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestPostUpdateOnlyByCreator(t *testing.T) {
	store := memstore.New()
	svc := newPostService(store)

	id, err := svc.Create(context.Background(), "u1", validPost())
	require.NoError(t, err)

	edit := validPost()
	edit.Title = "Jazz Night II"
	assert.ErrorIs(t, svc.Update(context.Background(), "u2", id, edit), feed.ErrForbidden)

	require.NoError(t, svc.Update(context.Background(), "u1", id, edit))
	p, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Jazz Night II", p.Title)
	assert.Equal(t, "Unknown", p.CreatorUsername)

	assert.ErrorIs(t, svc.Update(context.Background(), "u1", "missing", edit), docstore.ErrNotFound)
}

func TestSavedPostsToggleAndList(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	putUser(t, store, "u1", map[string]interface{}{"username": "maya"})
	putPost(t, store, "late", map[string]interface{}{"date": date("2024-07-01"), "category": "Art"})
	putPost(t, store, "early", map[string]interface{}{"date": date("2024-06-01"), "category": "Art"})

	saved, err := LoadSavedPosts(ctx, store, "u1", logging.Discard())
	require.NoError(t, err)
	defer saved.Close()

	for _, id := range []string{"late", "early", "deleted"} {
		on, err := saved.Toggle(ctx, id)
		require.NoError(t, err)
		assert.True(t, on)
	}

	posts, err := saved.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, postIDs(posts))

	on, err := saved.Toggle(ctx, "late")
	require.NoError(t, err)
	assert.False(t, on)

	doc, err := store.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"early", "deleted"}, docstore.Strings(doc.Data, "savedPosts"))

	reloaded, err := LoadSavedPosts(ctx, store, "u1", logging.Discard())
	require.NoError(t, err)
	assert.True(t, reloaded.IsSaved("early"))
	assert.False(t, reloaded.IsSaved("late"))
}

func TestSavedPostsToggleRollsBack(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	putUser(t, inner, "u1", map[string]interface{}{"savedPosts": []string{"a"}})
	store := &failingStore{Store: inner, failUpdates: true}

	saved, err := LoadSavedPosts(ctx, store, "u1", logging.Discard())
	require.NoError(t, err)

	on, err := saved.Toggle(ctx, "a")
	require.Error(t, err)
	assert.True(t, on)
	assert.True(t, saved.IsSaved("a"))

	_, err = saved.Toggle(ctx, "b")
	require.Error(t, err)
	assert.False(t, saved.IsSaved("b"))
}

func TestSavedPostsConcurrentTogglesStayInSync(t *testing.T) {
	ctx := context.Background()
	inner := memstore.New()
	putUser(t, inner, "u1", map[string]interface{}{"username": "maya"})
	store := &failingStore{Store: inner, delay: 20 * time.Millisecond}

	saved, err := LoadSavedPosts(ctx, store, "u1", logging.Discard())
	require.NoError(t, err)
	defer saved.Close()

	var wg sync.WaitGroup
	results := make(chan bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			on, err := saved.Toggle(ctx, "a")
			assert.NoError(t, err)
			results <- on
		}()
	}
	wg.Wait()
	close(results)

	var outcomes []bool
	for on := range results {
		outcomes = append(outcomes, on)
	}
	assert.ElementsMatch(t, []bool{true, false}, outcomes)
	assert.False(t, saved.IsSaved("a"))

	doc, err := inner.Get(ctx, "users", "u1")
	require.NoError(t, err)
	assert.NotContains(t, docstore.Strings(doc.Data, "savedPosts"), "a")
}
