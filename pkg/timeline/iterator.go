package timeline

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"twscraper/pkg/checkpoint"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/models"
	"twscraper/pkg/storage"
)

// PageFunc fetches one timeline page; cursor is empty for the first page
type PageFunc func(ctx context.Context, cursor string) (graphql.Node, error)

// Params scopes one iteration
type Params struct {
	// UserID keeps only tweets authored by this account when set
	UserID string
	// LastID is the floor id; iteration stops once it is reached
	LastID int64
	// Label names page n in the job record, e.g. "media:n"
	Label func(page int) string
}

// Result is the outcome of a crawl
type Result struct {
	// IDs are the distinct tweet ids found, newest first
	IDs []int64
	// NothingFound is set when the very first page held no tweets and no
	// users. It is advisory; callers decide whether it matters.
	NothingFound bool
	Pages        int
	JobID        string
}

// Iterator drives a PageFunc until a termination rule fires
type Iterator struct {
	entities storage.EntityStore
	recorder *checkpoint.Recorder
	logger   logger.Logger
}

// NewIterator creates an iterator. entities and recorder may be nil.
func NewIterator(entities storage.EntityStore, recorder *checkpoint.Recorder, log logger.Logger) *Iterator {
	return &Iterator{entities: entities, recorder: recorder, logger: logger.OrNop(log)}
}

// crawlState belongs to a single Run call
type crawlState struct {
	cursor    string
	ids       map[int64]struct{}
	seenUsers map[string]struct{}
	lowest    int64
	pages     int
}

// Run fetches pages until the feed is exhausted, the floor id is reached or
// the first page turns out empty. When job is non-nil the ids gathered so
// far are saved after every page that added some, so an error returned
// from here never loses what was already found.
func (it *Iterator) Run(ctx context.Context, fetch PageFunc, p Params, job *checkpoint.JobProgress) (*Result, error) {
	st := &crawlState{
		ids:       make(map[int64]struct{}),
		seenUsers: make(map[string]struct{}),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		st.pages++

		label := fmt.Sprintf("page:%d", st.pages)
		if p.Label != nil {
			label = p.Label(st.pages)
		}
		if job != nil && it.recorder != nil {
			if err := it.recorder.UpdateRange(ctx, job, label); err != nil {
				return nil, err
			}
		}
		it.logger.InfoWithFields("Getting timeline page", map[string]interface{}{
			"range":    label,
			"bookmark": st.bookmark(),
		})

		root, err := fetch(ctx, st.cursor)
		if err != nil {
			return nil, err
		}
		batch := graphql.Extract(root)

		if len(batch.Tweets) == 0 {
			if st.cursor == "" && len(batch.Users) == 0 {
				it.logger.InfoWithFields("No tweets found on timeline", map[string]interface{}{"range": label})
				return &Result{NothingFound: true, Pages: st.pages}, nil
			}
			it.logger.InfoWithFields("Reached end of timeline", map[string]interface{}{"range": label})
			return st.result(), nil
		}

		added, err := it.absorb(ctx, st, batch, p.UserID)
		if err != nil {
			return nil, err
		}
		logger.LogPage(it.logger, label, st.pages, len(added), len(st.ids))

		if len(added) > 0 {
			st.lowest = added[0]
			for _, id := range added[1:] {
				if id < st.lowest {
					st.lowest = id
				}
			}
		}

		// ids at or below the floor were synced before and never reach the job record
		floored := p.LastID > 0 && st.truncate(p.LastID)
		if len(added) > 0 && job != nil && it.recorder != nil {
			if err := it.recorder.SaveTempIDs(ctx, job, st.sorted()); err != nil {
				return nil, err
			}
		}

		if floored {
			it.logger.InfoWithFields("Caught up to previous sync point", map[string]interface{}{
				"last_id": p.LastID,
				"kept":    len(st.ids),
			})
			return st.result(), nil
		}

		next, ok := batch.Cursor("bottom")
		if !ok || next == "" {
			it.logger.InfoWithFields("Reached end of timeline", map[string]interface{}{"range": label})
			return st.result(), nil
		}
		st.cursor = next
	}
}

// absorb keeps the media tweets of the page, caches tweets and new users,
// and returns the ids it added.
func (it *Iterator) absorb(ctx context.Context, st *crawlState, batch *graphql.Batch, userID string) ([]int64, error) {
	var media []graphql.Record
	var added []int64
	for _, id := range batch.TweetIDs() {
		rec := batch.Tweets[id]
		if !models.HasMedia(rec) {
			continue
		}
		media = append(media, rec)
		if userID != "" && rec["user_id_str"] != userID {
			continue
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tweet id %q: %w", id, err)
		}
		if _, seen := st.ids[n]; !seen {
			st.ids[n] = struct{}{}
			added = append(added, n)
		}
	}
	it.cache(ctx, media, storage.KindTweet)

	var users []graphql.Record
	for id, rec := range batch.Users {
		if _, seen := st.seenUsers[id]; seen {
			continue
		}
		st.seenUsers[id] = struct{}{}
		users = append(users, rec)
	}
	it.cache(ctx, users, storage.KindUser)

	return added, nil
}

func (it *Iterator) cache(ctx context.Context, records []graphql.Record, kind storage.EntityKind) {
	if it.entities == nil || len(records) == 0 {
		return
	}
	if err := it.entities.Save(ctx, records, "id_str", storage.PlatformTwitter, kind); err != nil {
		it.logger.WarnWithFields("Failed to cache entities", map[string]interface{}{
			"kind":  string(kind),
			"count": len(records),
			"error": err.Error(),
		})
	}
}

// truncate drops ids at or below floor and reports whether any were found
func (st *crawlState) truncate(floor int64) bool {
	reached := false
	for id := range st.ids {
		if id <= floor {
			reached = true
			delete(st.ids, id)
		}
	}
	return reached
}

func (st *crawlState) bookmark() string {
	if st.lowest == 0 {
		return "initial"
	}
	return fmt.Sprintf("twitter #%d @ %s", st.lowest, models.SnowflakeTime(st.lowest).Format("2006-01-02 15:04:05"))
}

func (st *crawlState) sorted() []int64 {
	return SortDescending(st.ids)
}

func (st *crawlState) result() *Result {
	return &Result{IDs: st.sorted(), Pages: st.pages}
}

// SortDescending returns the ids of set newest first
func SortDescending(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return ids
}
