package timeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twscraper/pkg/checkpoint"
	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/storage"
)

// tweetEntry renders one timeline entry holding a media tweet by author
func tweetEntry(id int64, author string) string {
	return fmt.Sprintf(`{"content":{"itemContent":{"tweet_results":{"result":{
		"__typename":"Tweet","rest_id":"%d",
		"core":{"user_results":{"result":{"__typename":"User","rest_id":"%s","legacy":{"screen_name":"u%s"}}}},
		"legacy":{"user_id_str":"%s","full_text":"t","entities":{"media":[{"type":"photo","media_url_https":"https://pbs.twimg.com/media/%d.jpg"}]}}
	}}}}}`, id, author, author, author, id)
}

func textEntry(id int64, author string) string {
	return fmt.Sprintf(`{"content":{"itemContent":{"tweet_results":{"result":{
		"__typename":"Tweet","rest_id":"%d","legacy":{"user_id_str":"%s","full_text":"no media"}
	}}}}}`, id, author)
}

func page(cursor string, entries ...string) graphql.Node {
	if cursor != "" {
		entries = append(entries, fmt.Sprintf(
			`{"content":{"__typename":"TimelineTimelineCursor","cursorType":"Bottom","value":"%s"}}`, cursor))
	}
	doc := `{"data":{"timeline":{"instructions":[{"type":"TimelineAddEntries","entries":[` +
		strings.Join(entries, ",") + `]}]}}}`
	node, err := graphql.Parse([]byte(doc))
	if err != nil {
		panic(err)
	}
	return node
}

func tweets(author string, ids ...int64) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = tweetEntry(id, author)
	}
	return out
}

// fakeAPI serves pages keyed by the cursor they answer
type fakeAPI struct {
	pages   map[string]graphql.Node
	errs    map[string]error
	cursors []string
	counts  []int
	queries []string
}

func (f *fakeAPI) fetch(cursor string) (graphql.Node, error) {
	f.cursors = append(f.cursors, cursor)
	if err, ok := f.errs[cursor]; ok {
		return nil, err
	}
	node, ok := f.pages[cursor]
	if !ok {
		return nil, fmt.Errorf("unexpected cursor %q", cursor)
	}
	return node, nil
}

func (f *fakeAPI) UserMediaPage(ctx context.Context, userID string, count int, cursor string) (graphql.Node, error) {
	f.counts = append(f.counts, count)
	return f.fetch(cursor)
}

func (f *fakeAPI) SearchPage(ctx context.Context, query string, count int, cursor string) (graphql.Node, error) {
	f.counts = append(f.counts, count)
	f.queries = append(f.queries, query)
	return f.fetch(cursor)
}

func newCrawler(api API, recorder *checkpoint.Recorder, entities storage.EntityStore) *Crawler {
	return NewCrawler(api, recorder, entities, config.DefaultConfig().Crawl, logger.NewTestLogger())
}

func TestFirstEmptyPageIsNothingFound(t *testing.T) {
	api := &fakeAPI{pages: map[string]graphql.Node{"": page("")}}

	res, err := newCrawler(api, nil, nil).Media(context.Background(), "42", 0, "")
	require.NoError(t, err)
	assert.True(t, res.NothingFound)
	assert.Empty(t, res.IDs)
	assert.Len(t, api.cursors, 1, "no second request")
}

func TestEmptyFirstPageWithUsersIsEndOfFeed(t *testing.T) {
	userOnly := `{"content":{"__typename":"User","rest_id":"42","legacy":{"screen_name":"nasa"}}}`
	api := &fakeAPI{pages: map[string]graphql.Node{"": page("c1", userOnly)}}

	res, err := newCrawler(api, nil, nil).Media(context.Background(), "42", 0, "")
	require.NoError(t, err)
	assert.False(t, res.NothingFound)
	assert.Empty(t, res.IDs)
	assert.Len(t, api.cursors, 1)
}

func TestCursorExhaustion(t *testing.T) {
	api := &fakeAPI{pages: map[string]graphql.Node{
		"":   page("c1", tweets("42", 105, 104, 103)...),
		"c1": page("", tweets("42", 103, 102)...),
	}}

	res, err := newCrawler(api, nil, nil).Media(context.Background(), "42", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104, 103, 102}, res.IDs)
	assert.Equal(t, []string{"", "c1"}, api.cursors)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, []int{100, 100}, api.counts)
}

func TestFloorTruncatesAndStops(t *testing.T) {
	api := &fakeAPI{pages: map[string]graphql.Node{
		"":   page("c1", tweets("42", 105, 104, 103)...),
		"c1": page("", tweets("42", 102)...),
	}}

	res, err := newCrawler(api, nil, nil).Media(context.Background(), "42", 103, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104}, res.IDs)
	assert.Len(t, api.cursors, 1, "no fetch beyond the truncating page")
	assert.Equal(t, []int{20}, api.counts, "smaller pages when a floor is known")
}

func TestFiltersMediaAndAuthor(t *testing.T) {
	entries := append(tweets("42", 110), tweetEntry(109, "7"), textEntry(108, "42"))
	api := &fakeAPI{pages: map[string]graphql.Node{"": page("", entries...)}}
	entities := storage.NewMemoryEntityStore(time.Hour)

	res, err := newCrawler(api, nil, entities).Media(context.Background(), "42", 0, "")
	require.NoError(t, err)
	assert.Equal(t, []int64{110}, res.IDs)

	ctx := context.Background()
	_, ok, err := entities.Get(ctx, "109", storage.PlatformTwitter, storage.KindTweet)
	require.NoError(t, err)
	assert.True(t, ok, "media tweets by other authors are still cached")
	_, ok, err = entities.Get(ctx, "108", storage.PlatformTwitter, storage.KindTweet)
	require.NoError(t, err)
	assert.False(t, ok, "tweets without media are not cached")
	_, ok, err = entities.Get(ctx, "7", storage.PlatformTwitter, storage.KindUser)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestJobProgressSavedBeforeError(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	recorder := checkpoint.NewRecorder(store, nil)
	boom := errs.Network(errors.New("connection reset"))
	api := &fakeAPI{
		pages: map[string]graphql.Node{"": page("c1", tweets("42", 105, 104)...)},
		errs:  map[string]error{"c1": boom},
	}
	crawler := newCrawler(api, recorder, nil)
	ctx := context.Background()

	_, err := crawler.Media(ctx, "42", 0, "job-1")
	require.ErrorIs(t, err, boom)

	job, err := store.Load(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104}, job.TempIDs)
	assert.Equal(t, "media:2", job.Range)
	assert.Equal(t, checkpoint.PhaseMedia, job.Phase)

	res, err := crawler.Recover(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104}, res.IDs)

	res, err = crawler.Recover(ctx, "job-1")
	require.NoError(t, err)
	assert.Empty(t, res.IDs, "temp ids are drained")
}

func TestFlooredPageKeepsSyncedIDsOutOfJob(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	api := &fakeAPI{pages: map[string]graphql.Node{
		"": page("c1", tweets("42", 105, 104, 103, 102)...),
	}}
	crawler := newCrawler(api, checkpoint.NewRecorder(store, nil), nil)
	ctx := context.Background()

	_, err := crawler.Media(ctx, "42", 103, "job-7")
	require.NoError(t, err)

	job, err := store.Load(ctx, "job-7")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104}, job.TempIDs)

	res, err := crawler.Recover(ctx, "job-7")
	require.NoError(t, err)
	assert.Equal(t, []int64{105, 104}, res.IDs)
}

func TestRecoverDoesNotFetch(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save(context.Background(), &checkpoint.JobProgress{
		JobID:   "job-2",
		Phase:   checkpoint.PhaseMedia,
		TempIDs: []int64{3, 9, 5},
	}))
	api := &fakeAPI{}

	res, err := newCrawler(api, checkpoint.NewRecorder(store, nil), nil).Recover(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 5, 3}, res.IDs)
	assert.Empty(t, api.cursors)
}

func TestFinishClearsTempIDs(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	crawler := newCrawler(&fakeAPI{pages: map[string]graphql.Node{
		"": page("", tweets("42", 5, 4)...),
	}}, checkpoint.NewRecorder(store, nil), nil)
	ctx := context.Background()

	res, err := crawler.Media(ctx, "42", 0, "job-3")
	require.NoError(t, err)
	require.NoError(t, crawler.Finish(ctx, res))

	job, err := store.Load(ctx, "job-3")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.StageDone, job.Stage)
	assert.Equal(t, []int64{5, 4}, job.IDs)
	assert.Empty(t, job.TempIDs)
}

func TestSearchQueryAndLabels(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	api := &fakeAPI{pages: map[string]graphql.Node{
		"":   page("c1", tweets("42", 50)...),
		"c1": page("", tweets("42", 49)...),
	}}
	crawler := newCrawler(api, checkpoint.NewRecorder(store, nil), nil)
	ctx := context.Background()

	res, err := crawler.Search(ctx, SearchParams{
		Account:     "nasa",
		UserID:      "42",
		Since:       "2024-01-01",
		Until:       "01/02/2024",
		FilterLinks: true,
		JobID:       "job-4",
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{50, 49}, res.IDs)
	assert.Equal(t, "from:nasa since:2024-01-01 filter:links", api.queries[0])

	job, err := store.Load(ctx, "job-4")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.PhaseSearch, job.Phase)
	assert.Equal(t, "2024-01-01..:2", job.Range)
}

func TestSearchNeedsDateBound(t *testing.T) {
	_, err := newCrawler(&fakeAPI{}, nil, nil).Search(context.Background(), SearchParams{Account: "nasa"})
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeInvalidParams, errs.TypeOf(err))
}

func TestJobWithoutRecorderIsRejected(t *testing.T) {
	_, err := newCrawler(&fakeAPI{}, nil, nil).Media(context.Background(), "42", 0, "job-5")
	assert.Equal(t, errs.ErrorTypeInvalidParams, errs.TypeOf(err))
}

func TestPhaseSwitchDiscardsOtherTimelineIDs(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, &checkpoint.JobProgress{
		JobID:   "job-6",
		Phase:   checkpoint.PhaseSearch,
		TempIDs: []int64{999},
	}))
	api := &fakeAPI{pages: map[string]graphql.Node{"": page("", tweets("42", 7)...)}}

	res, err := newCrawler(api, checkpoint.NewRecorder(store, nil), nil).Media(ctx, "42", 0, "job-6")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, res.IDs)

	job, err := store.Load(ctx, "job-6")
	require.NoError(t, err)
	assert.Equal(t, []int64{7}, job.TempIDs)
}

func TestIteratorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	api := &fakeAPI{}

	_, err := NewIterator(nil, nil, nil).Run(ctx, func(ctx context.Context, cursor string) (graphql.Node, error) {
		return api.fetch(cursor)
	}, Params{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, api.cursors)
}
