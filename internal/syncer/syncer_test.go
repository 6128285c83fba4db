package syncer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twscraper/internal/jobs"
	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/errsink"
	"twscraper/pkg/events"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/metadata"
	"twscraper/pkg/storage"
	"twscraper/pkg/subscription"
	"twscraper/pkg/timeline"
)

type fakeAPI struct {
	tweets    map[string]graphql.Record
	tweetErr  map[string]error
	userErr   error
	files     map[string][]byte
	userCalls int
}

func (f *fakeAPI) TweetByID(ctx context.Context, id string) (graphql.Record, error) {
	if err := f.tweetErr[id]; err != nil {
		return nil, err
	}
	rec, ok := f.tweets[id]
	if !ok {
		return nil, errs.DataIntegrity("tweet %s has no result", id)
	}
	return rec, nil
}

func (f *fakeAPI) UserByID(ctx context.Context, id string) (graphql.Record, error) {
	f.userCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	return graphql.Record{"id_str": id}, nil
}

func (f *fakeAPI) Download(ctx context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, errs.Upstream("no file at %s", url)
	}
	return data, nil
}

type fakeCrawler struct {
	result    *timeline.Result
	err       error
	recovered *timeline.Result
	lastID    int64
	finished  *timeline.Result
}

func (f *fakeCrawler) Media(ctx context.Context, userID string, lastID int64, jobID string) (*timeline.Result, error) {
	f.lastID = lastID
	if f.err != nil {
		return nil, f.err
	}
	res := *f.result
	res.JobID = jobID
	return &res, nil
}

func (f *fakeCrawler) Recover(ctx context.Context, jobID string) (*timeline.Result, error) {
	res := *f.recovered
	res.JobID = jobID
	return &res, nil
}

func (f *fakeCrawler) Finish(ctx context.Context, res *timeline.Result) error {
	f.finished = res
	return nil
}

type recordingPublisher struct {
	events []events.CrawlCompleted
}

func (p *recordingPublisher) PublishCrawl(ctx context.Context, ev events.CrawlCompleted) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
	crawls   []string
	sweeps   []string
}

func (o *recordingObserver) ObserveCrawl(phase string, ids int, nothingFound bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.crawls = append(o.crawls, phase)
}

func (o *recordingObserver) ObserveSync(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) ObserveSweep(kind string, processed, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sweeps = append(o.sweeps, kind)
}

func photoTweet(id string) graphql.Record {
	return graphql.Record{
		"id_str": id,
		"extended_entities": map[string]interface{}{
			"media": []interface{}{
				map[string]interface{}{"type": "photo", "media_url_https": "https://pbs.example/" + id + ".jpg"},
			},
		},
	}
}

func videoTweet(id string) graphql.Record {
	return graphql.Record{
		"id_str": id,
		"extended_entities": map[string]interface{}{
			"media": []interface{}{
				map[string]interface{}{
					"type": "video",
					"video_info": map[string]interface{}{
						"variants": []interface{}{
							map[string]interface{}{"content_type": "video/mp4", "bitrate": 256000, "url": "https://video.example/low.mp4"},
							map[string]interface{}{"content_type": "video/mp4", "bitrate": 2176000, "url": "https://video.example/high.mp4"},
						},
					},
				},
				map[string]interface{}{"type": "photo", "media_url_https": "https://pbs.example/" + id + "-2.jpg"},
			},
		},
	}
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type fixture struct {
	api       *fakeAPI
	crawler   *fakeCrawler
	store     *subscription.MemoryStore
	sink      *errsink.MemorySink
	assets    *storage.Manager
	publisher *recordingPublisher
	observer  *recordingObserver
	syncer    *Syncer
	rec       *subscription.Reconciler
	sub       *subscription.Subscription
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	assets, err := storage.NewManager(root, "")
	require.NoError(t, err)

	cfg := config.DefaultConfig().Subscription
	cfg.RequeryInterval = 6 * time.Hour

	f := &fixture{
		api: &fakeAPI{
			tweets:   map[string]graphql.Record{},
			tweetErr: map[string]error{},
			files:    map[string][]byte{},
		},
		crawler:   &fakeCrawler{result: &timeline.Result{}},
		store:     subscription.NewMemoryStore(),
		sink:      errsink.NewMemorySink(),
		assets:    assets,
		publisher: &recordingPublisher{},
		observer:  &recordingObserver{},
		now:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.rec = subscription.NewReconciler(f.store, assets, f.sink, cfg, logger.NewTestLogger())
	f.syncer = New(f.api, f.crawler, f.rec, assets, cfg,
		WithPublisher(f.publisher),
		WithObserver(f.observer),
		WithLogger(logger.NewTestLogger()),
		WithClock(func() time.Time { return f.now }),
		WithJobIDs(func() string { return "job-1" }),
	)

	f.sub = &subscription.Subscription{AccountID: "42", Handle: "nasa", LastID: 100, ExpirationDays: 14,
		Status: subscription.SubscriptionAutomatic, Active: true}
	require.NoError(t, f.store.CreateSubscription(context.Background(), f.sub))
	return f
}

func (f *fixture) reload(t *testing.T) *subscription.Subscription {
	t.Helper()
	sub, err := f.store.GetSubscription(context.Background(), f.sub.ID)
	require.NoError(t, err)
	return sub
}

func (f *fixture) elements(t *testing.T) map[int64]*subscription.Element {
	t.Helper()
	list, err := f.store.ListElements(context.Background(), f.sub.ID, 0, 100)
	require.NoError(t, err)
	out := make(map[int64]*subscription.Element, len(list))
	for _, e := range list {
		out[e.ContentID] = e
	}
	return out
}

func TestSyncReconcilesNewMedia(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{IDs: []int64{105, 104}, Pages: 1}
	f.api.tweets["105"] = photoTweet("105")
	f.api.tweets["104"] = videoTweet("104")
	f.api.files["https://pbs.example/105.jpg?name=orig"] = []byte("photo-105")
	f.api.files["https://video.example/high.mp4"] = []byte("video-104")
	f.api.files["https://pbs.example/104-2.jpg?name=orig"] = []byte("photo-104")

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)

	assert.Equal(t, "job-1", report.JobID)
	assert.Equal(t, 2, report.Discovered)
	assert.Equal(t, 2, report.Linked)
	assert.Equal(t, int64(105), report.LastID)
	assert.Equal(t, OutcomeOK, report.Outcome)
	assert.Equal(t, int64(100), f.crawler.lastID)
	require.NotNil(t, f.crawler.finished)
	assert.Equal(t, "job-1", f.crawler.finished.JobID)

	sub := f.reload(t)
	assert.Equal(t, int64(105), sub.LastID)
	require.NotNil(t, sub.RequeryAt)
	assert.True(t, sub.RequeryAt.Equal(f.now.Add(6*time.Hour)))

	elements := f.elements(t)
	require.Len(t, elements, 2)
	assert.Equal(t, subscription.StatusActive, elements[105].Status)
	assert.Equal(t, "105", elements[105].AssetKey)
	assert.Equal(t, md5hex("photo-105"), elements[105].Fingerprint)
	assert.Equal(t, Fingerprint([]string{md5hex("video-104"), md5hex("photo-104")}), elements[104].Fingerprint)
	assert.True(t, f.assets.Exists("104"))

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, 2, f.publisher.events[0].Linked)
	assert.Empty(t, f.publisher.events[0].Error)
	assert.Equal(t, []string{OutcomeOK}, f.observer.outcomes)
	assert.Equal(t, []string{"media"}, f.observer.crawls)
}

func TestSyncWritesMetadata(t *testing.T) {
	f := newFixture(t)
	f.syncer = New(f.api, f.crawler, f.rec, f.assets, config.DefaultConfig().Subscription,
		WithClock(func() time.Time { return f.now }),
		WithMetadata(true),
	)
	f.crawler.result = &timeline.Result{IDs: []int64{105}}
	tweet := photoTweet("105")
	tweet["user_id_str"] = "42"
	tweet["full_text"] = "first light"
	f.api.tweets["105"] = tweet
	f.api.files["https://pbs.example/105.jpg?name=orig"] = []byte("photo-105")

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	require.Equal(t, 1, report.Linked)

	file, err := os.Open(filepath.Join(f.assets.Locate("105"), metadata.Filename("105")))
	require.NoError(t, err)
	defer file.Close()
	meta, err := metadata.Decode(file)
	require.NoError(t, err)

	assert.Equal(t, "https://x.com/nasa/status/105", meta.URL)
	assert.Equal(t, metadata.Author{ID: "42", ScreenName: "nasa"}, meta.Author)
	assert.Equal(t, "first light", meta.Text)
	assert.Equal(t, f.now, meta.DownloadedAt)
	require.Len(t, meta.Media, 1)
	assert.Equal(t, "105-1.jpg", meta.Media[0].Name)
	assert.Equal(t, md5hex("photo-105"), meta.Media[0].MD5)
	// the metadata file does not change the fingerprint
	assert.Equal(t, md5hex("photo-105"), meta.Fingerprint)
	assert.Equal(t, md5hex("photo-105"), f.elements(t)[105].Fingerprint)
}

func TestSyncRecordsFailedDownload(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{IDs: []int64{105, 104}}
	f.api.tweets["105"] = photoTweet("105")
	f.api.tweets["104"] = photoTweet("104")
	f.api.files["https://pbs.example/105.jpg?name=orig"] = []byte("photo-105")

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, 1, report.Failed)

	elements := f.elements(t)
	assert.Equal(t, subscription.StatusError, elements[104].Status)
	assert.Len(t, elements[104].ErrorIDs, 1)
	assert.False(t, f.assets.Exists("104"))
	require.Len(t, f.sink.Records(), 1)
	assert.Contains(t, f.sink.Records()[0].Message, "no file at")

	// the floor still advances; the errored element is retried next time
	assert.Equal(t, int64(105), f.reload(t).LastID)

	f.api.files["https://pbs.example/104.jpg?name=orig"] = []byte("photo-104")
	f.crawler.result = &timeline.Result{IDs: []int64{104}}
	report, err = f.syncer.Sync(context.Background(), f.reload(t))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Linked)
	assert.Equal(t, subscription.StatusActive, f.elements(t)[104].Status)
}

func TestSyncSkipsTweetWithoutMedia(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{IDs: []int64{105}}
	f.api.tweets["105"] = graphql.Record{"id_str": "105"}

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, subscription.StatusActive, f.elements(t)[105].Status)
	assert.Empty(t, f.sink.Records())
}

func TestSyncNothingFoundDeactivatesMissingAccount(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{NothingFound: true, Pages: 1}
	f.api.userErr = errs.DataIntegrity("user 42 has no result")

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeactivated, report.Outcome)
	assert.True(t, report.NothingFound)
	assert.Equal(t, 1, f.api.userCalls)

	sub := f.reload(t)
	assert.False(t, sub.Active)
	assert.Equal(t, subscription.SubscriptionError, sub.Status)
	assert.Len(t, sub.ErrorIDs, 1)
	assert.Nil(t, f.crawler.finished)
	require.Len(t, f.publisher.events, 1)
	assert.True(t, f.publisher.events[0].NothingFound)
}

func TestSyncNothingFoundKeepsExistingAccount(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{NothingFound: true, Pages: 1}

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, report.Outcome)

	sub := f.reload(t)
	assert.True(t, sub.Active)
	assert.Equal(t, int64(100), sub.LastID)
	assert.NotNil(t, sub.RequeryAt)
}

func TestSyncCrawlErrorMarksSubscription(t *testing.T) {
	f := newFixture(t)
	f.crawler.err = errs.Upstream("timeline: rate limit exceeded")

	report, err := f.syncer.Sync(context.Background(), f.sub)
	require.Error(t, err)
	assert.Equal(t, OutcomeError, report.Outcome)

	sub := f.reload(t)
	assert.Equal(t, subscription.SubscriptionError, sub.Status)
	assert.True(t, sub.Active)
	require.NotNil(t, sub.RequeryAt)
	require.Len(t, f.sink.Records(), 1)
	assert.Equal(t, "sync:1", f.sink.Records()[0].Origin)
	require.Len(t, f.publisher.events, 1)
	assert.Contains(t, f.publisher.events[0].Error, "rate limit")
	assert.Equal(t, []string{OutcomeError}, f.observer.outcomes)
}

func TestSyncAuthFailureStopsReconciliation(t *testing.T) {
	f := newFixture(t)
	f.crawler.result = &timeline.Result{IDs: []int64{105, 104}}
	f.api.tweetErr["105"] = errs.New(errs.ErrorTypeAuth, "credentials rejected")

	_, err := f.syncer.Sync(context.Background(), f.sub)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))

	elements := f.elements(t)
	assert.Equal(t, subscription.StatusActive, elements[105].Status)
	assert.Empty(t, elements[105].ErrorIDs)
	assert.Equal(t, subscription.SubscriptionError, f.reload(t).Status)
	assert.Equal(t, int64(100), f.reload(t).LastID)
}

func TestSyncCancelledLeavesSubscriptionAlone(t *testing.T) {
	f := newFixture(t)
	f.crawler.err = context.Canceled
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.syncer.Sync(ctx, f.sub)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, subscription.SubscriptionAutomatic, f.reload(t).Status)
	assert.Empty(t, f.sink.Records())
}

func TestSyncClearsSubscriptionError(t *testing.T) {
	f := newFixture(t)
	f.sub.Status = subscription.SubscriptionError
	require.NoError(t, f.store.UpdateSubscription(context.Background(), f.sub))

	_, err := f.syncer.Sync(context.Background(), f.sub)
	require.NoError(t, err)
	assert.Equal(t, subscription.SubscriptionAutomatic, f.reload(t).Status)
}

func TestResumeReconcilesRecoveredIDs(t *testing.T) {
	f := newFixture(t)
	f.crawler.recovered = &timeline.Result{IDs: []int64{107, 106}}
	f.api.tweets["107"] = photoTweet("107")
	f.api.tweets["106"] = photoTweet("106")
	f.api.files["https://pbs.example/107.jpg?name=orig"] = []byte("a")
	f.api.files["https://pbs.example/106.jpg?name=orig"] = []byte("b")

	report, err := f.syncer.Resume(context.Background(), f.sub, "old-job")
	require.NoError(t, err)
	assert.Equal(t, "old-job", report.JobID)
	assert.Equal(t, 2, report.Linked)
	assert.Equal(t, int64(107), f.reload(t).LastID)
	assert.Equal(t, []string{"recover"}, f.observer.crawls)
}

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "abc", Fingerprint([]string{"abc"}))
	assert.Equal(t, md5hex("abcdef"), Fingerprint([]string{"abc", "def"}))
	assert.NotEqual(t, Fingerprint([]string{"abc", "def"}), Fingerprint([]string{"def", "abc"}))
}

func TestSchedulerQueuesEachSubscriptionOnce(t *testing.T) {
	f := newFixture(t)
	other := &subscription.Subscription{AccountID: "7", Handle: "esa", Status: subscription.SubscriptionAutomatic, Active: true}
	require.NoError(t, f.store.CreateSubscription(context.Background(), other))

	pool := jobs.NewPool(context.Background(), config.JobsConfig{Workers: 2}, nil)
	sc := NewScheduler(f.syncer, f.rec, pool, config.JobsConfig{Workers: 2}, f.observer, nil)

	queued, err := sc.EnqueueDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	queued, err = sc.EnqueueDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, queued)
	assert.Equal(t, 2, pool.QueueSize())

	require.NoError(t, sc.EnqueueSweeps())
	require.NoError(t, sc.EnqueueSweeps())
	assert.Equal(t, 3, pool.QueueSize())
}

func TestSchedulerRunsQueuedJobs(t *testing.T) {
	f := newFixture(t)
	pool := jobs.NewPool(context.Background(), config.JobsConfig{Workers: 1}, nil)
	sc := NewScheduler(f.syncer, f.rec, pool, config.JobsConfig{Workers: 1}, f.observer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sc.Run(ctx) }()

	require.Eventually(t, func() bool {
		f.observer.mu.Lock()
		defer f.observer.mu.Unlock()
		return len(f.observer.outcomes) == 1 && len(f.observer.sweeps) == len(subscription.SweepKinds)
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.NotNil(t, f.reload(t).RequeryAt)
}
