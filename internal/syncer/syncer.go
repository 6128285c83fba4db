// Package syncer runs one subscription sync end to end: crawl the account's
// media timeline, reconcile the discovered ids into elements, retain each
// element's media and move the subscription's floor id forward.
package syncer

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"twscraper/pkg/checkpoint"
	"twscraper/pkg/config"
	"twscraper/pkg/events"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/metadata"
	"twscraper/pkg/models"
	"twscraper/pkg/subscription"
	"twscraper/pkg/timeline"
	"twscraper/pkg/twitter"
)

// Sync outcomes reported to the observer
const (
	OutcomeOK          = "ok"
	OutcomeError       = "error"
	OutcomeDeactivated = "deactivated"
)

// API is the part of the platform client a sync needs
type API interface {
	TweetByID(ctx context.Context, tweetID string) (graphql.Record, error)
	UserByID(ctx context.Context, userID string) (graphql.Record, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Crawler discovers ids and closes the job once they are reconciled
type Crawler interface {
	Media(ctx context.Context, userID string, lastID int64, jobID string) (*timeline.Result, error)
	Recover(ctx context.Context, jobID string) (*timeline.Result, error)
	Finish(ctx context.Context, res *timeline.Result) error
}

// AssetSaver writes retained media. Save returns the md5 hex digest of the
// written file.
type AssetSaver interface {
	Save(key, name string, r io.Reader) (string, error)
	Remove(key string) error
}

// Observer receives sync metrics
type Observer interface {
	ObserveCrawl(phase string, ids int, nothingFound bool, err error)
	ObserveSync(outcome string)
}

// Report summarizes one sync
type Report struct {
	SubscriptionID int64  `json:"subscription_id"`
	JobID          string `json:"job_id"`
	Discovered     int    `json:"discovered"`
	Linked         int    `json:"linked"`
	Skipped        int    `json:"skipped"`
	Failed         int    `json:"failed"`
	NothingFound   bool   `json:"nothing_found"`
	LastID         int64  `json:"last_id"`
	Outcome        string `json:"outcome"`
}

// Option customizes a Syncer
type Option func(*Syncer)

// WithPublisher publishes a crawl event after every sync
func WithPublisher(p events.Publisher) Option {
	return func(s *Syncer) { s.publisher = p }
}

// WithObserver records sync metrics
func WithObserver(o Observer) Option {
	return func(s *Syncer) { s.observer = o }
}

// WithLogger sets the logger
func WithLogger(log logger.Logger) Option {
	return func(s *Syncer) { s.logger = logger.OrNop(log) }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

// WithMetadata writes a metadata file next to every retained tweet's media
func WithMetadata(enabled bool) Option {
	return func(s *Syncer) { s.saveMetadata = enabled }
}

// WithJobIDs replaces the job id generator
func WithJobIDs(next func() string) Option {
	return func(s *Syncer) { s.newJobID = next }
}

// Syncer orchestrates subscription syncs
type Syncer struct {
	api          API
	crawler      Crawler
	reconciler   *subscription.Reconciler
	assets       AssetSaver
	cfg          config.SubscriptionConfig
	publisher    events.Publisher
	observer     Observer
	logger       logger.Logger
	now          func() time.Time
	newJobID     func() string
	saveMetadata bool
}

// New creates a syncer
func New(api API, crawler Crawler, reconciler *subscription.Reconciler, assets AssetSaver, cfg config.SubscriptionConfig, opts ...Option) *Syncer {
	s := &Syncer{
		api:        api,
		crawler:    crawler,
		reconciler: reconciler,
		assets:     assets,
		cfg:        cfg,
		publisher:  events.Nop{},
		logger:     logger.NewNopLogger(),
		now:        time.Now,
		newJobID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the subscription store the syncer reconciles into
func (s *Syncer) Store() subscription.Store {
	return s.reconciler.Store()
}

// Sync crawls sub's media timeline from its floor id and reconciles what
// was found. Failures are recorded on the subscription before returning.
func (s *Syncer) Sync(ctx context.Context, sub *subscription.Subscription) (*Report, error) {
	jobID := s.newJobID()
	report := &Report{SubscriptionID: sub.ID, JobID: jobID, LastID: sub.LastID}
	log := s.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"handle":          sub.Handle,
		"job_id":          jobID,
	})
	log.Info("Starting subscription sync")

	res, err := s.crawler.Media(ctx, sub.AccountID, sub.LastID, jobID)
	s.observeCrawl(string(checkpoint.PhaseMedia), res, err)
	if err != nil {
		return s.fail(ctx, sub, report, err)
	}
	report.Discovered = len(res.IDs)
	report.NothingFound = res.NothingFound

	if res.NothingFound {
		if _, err := s.api.UserByID(ctx, sub.AccountID); err != nil {
			if twitter.IsAuthFailure(err) {
				return s.fail(ctx, sub, report, err)
			}
			return s.deactivate(ctx, sub, report, err)
		}
		log.Info("Account exists but has no media")
	}

	return s.reconcile(ctx, sub, res, report, log)
}

// Resume reconciles the ids an interrupted sync job left behind, without
// touching the timeline
func (s *Syncer) Resume(ctx context.Context, sub *subscription.Subscription, jobID string) (*Report, error) {
	report := &Report{SubscriptionID: sub.ID, JobID: jobID, LastID: sub.LastID}
	log := s.logger.WithFields(map[string]interface{}{
		"subscription_id": sub.ID,
		"job_id":          jobID,
	})

	res, err := s.crawler.Recover(ctx, jobID)
	s.observeCrawl("recover", res, err)
	if err != nil {
		return s.fail(ctx, sub, report, err)
	}
	report.Discovered = len(res.IDs)
	log.InfoWithFields("Recovered interrupted job", map[string]interface{}{"ids": len(res.IDs)})
	return s.reconcile(ctx, sub, res, report, log)
}

func (s *Syncer) reconcile(ctx context.Context, sub *subscription.Subscription, res *timeline.Result, report *Report, log logger.Logger) (*Report, error) {
	elements, err := s.reconciler.CreateElements(ctx, sub, res.IDs)
	if err != nil {
		return s.fail(ctx, sub, report, err)
	}

	for _, e := range elements {
		if !needsAsset(e) {
			continue
		}
		if err := s.retain(ctx, sub, e, report); err != nil {
			return s.fail(ctx, sub, report, err)
		}
	}

	if len(res.IDs) > 0 && res.IDs[0] > sub.LastID {
		sub.LastID = res.IDs[0]
	}
	if sub.Status == subscription.SubscriptionError {
		sub.Status = subscription.SubscriptionAutomatic
	}
	s.scheduleRequery(sub)
	if err := s.Store().UpdateSubscription(ctx, sub); err != nil {
		return s.fail(ctx, sub, report, fmt.Errorf("update subscription: %w", err))
	}

	// the job only closes once every id has an element
	if err := s.crawler.Finish(ctx, res); err != nil {
		log.WarnWithFields("Failed to close job progress", map[string]interface{}{"error": err.Error()})
	}

	report.LastID = sub.LastID
	report.Outcome = OutcomeOK
	s.finish(ctx, sub, report, nil)
	log.InfoWithFields("Subscription sync complete", map[string]interface{}{
		"discovered": report.Discovered,
		"linked":     report.Linked,
		"failed":     report.Failed,
		"last_id":    report.LastID,
	})
	return report, nil
}

// needsAsset reports whether e still has to be downloaded. Errored
// elements get another attempt.
func needsAsset(e *subscription.Element) bool {
	switch e.Status {
	case subscription.StatusActive:
		return e.AssetKey == ""
	case subscription.StatusError:
		return true
	default:
		return false
	}
}

// retain downloads the media of one element and links it. Only failures
// that make the rest of the sync pointless are returned; the others are
// recorded on the element.
func (s *Syncer) retain(ctx context.Context, sub *subscription.Subscription, e *subscription.Element, report *Report) error {
	key, fingerprint, err := s.download(ctx, sub.Handle, e.ContentID)
	switch {
	case err == nil:
	case errors.Is(err, errNoMedia):
		report.Skipped++
		return nil
	case twitter.IsAuthFailure(err), ctx.Err() != nil:
		return err
	default:
		report.Failed++
		origin := fmt.Sprintf("element:%d", e.ID)
		if markErr := s.reconciler.MarkError(ctx, e, origin, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}

	if err := s.reconciler.Link(ctx, sub, e, key, fingerprint); err != nil {
		return fmt.Errorf("link element %d: %w", e.ID, err)
	}
	report.Linked++
	return nil
}

var errNoMedia = errors.New("tweet has no media")

// download saves every media file of a tweet under the tweet id and
// returns the asset key and its fingerprint
func (s *Syncer) download(ctx context.Context, handle string, contentID int64) (string, string, error) {
	key := strconv.FormatInt(contentID, 10)
	record, err := s.api.TweetByID(ctx, key)
	if err != nil {
		return "", "", err
	}
	tweet, err := models.TweetFromRecord(record)
	if err != nil {
		return "", "", err
	}
	assets := tweet.Assets()
	if len(assets) == 0 {
		return "", "", errNoMedia
	}

	files := make([]metadata.File, 0, len(assets))
	sums := make([]string, 0, len(assets))
	for _, asset := range assets {
		data, err := s.api.Download(ctx, asset.URL)
		if err == nil {
			var sum string
			sum, err = s.assets.Save(key, asset.Filename(), bytes.NewReader(data))
			sums = append(sums, sum)
			files = append(files, metadata.File{Name: asset.Filename(), Type: asset.Type, URL: asset.URL, MD5: sum})
		}
		if err != nil {
			s.discard(key)
			return "", "", fmt.Errorf("download %s: %w", asset.Filename(), err)
		}
	}

	fingerprint := Fingerprint(sums)
	if s.saveMetadata {
		meta := metadata.FromTweet(tweet, handle, files, fingerprint, s.now())
		data, err := meta.Encode()
		if err == nil {
			_, err = s.assets.Save(key, metadata.Filename(key), bytes.NewReader(data))
		}
		if err != nil {
			s.discard(key)
			return "", "", fmt.Errorf("save metadata of %s: %w", key, err)
		}
	}
	return key, fingerprint, nil
}

// discard removes a partially written asset
func (s *Syncer) discard(key string) {
	if err := s.assets.Remove(key); err != nil {
		s.logger.WarnWithFields("Failed to remove partial asset", map[string]interface{}{
			"asset_key": key,
			"error":     err.Error(),
		})
	}
}

// Fingerprint combines the digests of an asset's files. A single file keeps
// its own digest.
func Fingerprint(sums []string) string {
	if len(sums) == 1 {
		return sums[0]
	}
	h := md5.New()
	for _, sum := range sums {
		io.WriteString(h, sum)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Syncer) scheduleRequery(sub *subscription.Subscription) {
	if s.cfg.RequeryInterval <= 0 {
		return
	}
	next := s.now().Add(s.cfg.RequeryInterval)
	sub.RequeryAt = &next
}

// fail records err on the subscription. A cancelled context is returned
// as is, since the job can resume from its progress record.
func (s *Syncer) fail(ctx context.Context, sub *subscription.Subscription, report *Report, err error) (*Report, error) {
	report.Outcome = OutcomeError
	if ctx.Err() != nil {
		return report, err
	}

	s.scheduleRequery(sub)
	origin := fmt.Sprintf("sync:%d", sub.ID)
	if markErr := s.reconciler.MarkSubscriptionError(ctx, sub, origin, err.Error()); markErr != nil {
		s.logger.ErrorWithFields("Failed to record subscription error", map[string]interface{}{
			"subscription_id": sub.ID,
			"error":           markErr.Error(),
		})
	}
	s.finish(ctx, sub, report, err)
	return report, err
}

// deactivate stops syncing an account that came back empty and can no
// longer be fetched
func (s *Syncer) deactivate(ctx context.Context, sub *subscription.Subscription, report *Report, cause error) (*Report, error) {
	report.Outcome = OutcomeDeactivated
	if ctx.Err() != nil {
		return report, cause
	}

	sub.Active = false
	origin := fmt.Sprintf("recheck:%d", sub.ID)
	message := fmt.Sprintf("account %s returned nothing and could not be fetched: %v", sub.AccountID, cause)
	if err := s.reconciler.MarkSubscriptionError(ctx, sub, origin, message); err != nil {
		return report, err
	}
	s.finish(ctx, sub, report, cause)
	return report, nil
}

func (s *Syncer) observeCrawl(phase string, res *timeline.Result, err error) {
	if s.observer == nil {
		return
	}
	var ids int
	var nothing bool
	if res != nil {
		ids, nothing = len(res.IDs), res.NothingFound
	}
	s.observer.ObserveCrawl(phase, ids, nothing, err)
}

func (s *Syncer) finish(ctx context.Context, sub *subscription.Subscription, report *Report, cause error) {
	if s.observer != nil {
		s.observer.ObserveSync(report.Outcome)
	}

	ev := events.CrawlCompleted{
		SubscriptionID: sub.ID,
		AccountID:      sub.AccountID,
		Handle:         sub.Handle,
		JobID:          report.JobID,
		Phase:          string(checkpoint.PhaseMedia),
		Discovered:     report.Discovered,
		Linked:         report.Linked,
		Failed:         report.Failed,
		NothingFound:   report.NothingFound,
		LastID:         report.LastID,
		FinishedAt:     s.now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := s.publisher.PublishCrawl(ctx, ev); err != nil {
		s.logger.WarnWithFields("Failed to publish crawl event", map[string]interface{}{
			"subscription_id": sub.ID,
			"error":           err.Error(),
		})
	}
}
