package timeline

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"twscraper/pkg/checkpoint"
	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/graphql"
	"twscraper/pkg/logger"
	"twscraper/pkg/storage"
)

// API fetches raw timeline pages
type API interface {
	UserMediaPage(ctx context.Context, userID string, count int, cursor string) (graphql.Node, error)
	SearchPage(ctx context.Context, query string, count int, cursor string) (graphql.Node, error)
}

var searchDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Crawler exposes the media, search and recover entry points
type Crawler struct {
	api      API
	iterator *Iterator
	recorder *checkpoint.Recorder
	cfg      config.CrawlConfig
	logger   logger.Logger
}

// NewCrawler creates a crawler. recorder is required only for job crawls.
func NewCrawler(api API, recorder *checkpoint.Recorder, entities storage.EntityStore, cfg config.CrawlConfig, log logger.Logger) *Crawler {
	log = logger.OrNop(log)
	return &Crawler{
		api:      api,
		iterator: NewIterator(entities, recorder, log),
		recorder: recorder,
		cfg:      cfg,
		logger:   log,
	}
}

// Media crawls an account's media timeline down to lastID (0 for none)
func (c *Crawler) Media(ctx context.Context, userID string, lastID int64, jobID string) (*Result, error) {
	if userID == "" {
		return nil, errs.InvalidParams("media timeline needs a user id")
	}
	job, err := c.begin(ctx, jobID, checkpoint.PhaseMedia)
	if err != nil {
		return nil, err
	}

	count := c.cfg.MediaPageSize
	if lastID > 0 {
		count = c.cfg.MediaPageSizeWithFloor
	}
	c.logger.InfoWithFields("Populating from media timeline", map[string]interface{}{
		"user_id": userID,
		"last_id": lastID,
		"count":   count,
	})

	fetch := func(ctx context.Context, cursor string) (graphql.Node, error) {
		return c.api.UserMediaPage(ctx, userID, count, cursor)
	}
	return c.run(ctx, fetch, Params{
		UserID: userID,
		LastID: lastID,
		Label:  func(page int) string { return fmt.Sprintf("media:%d", page) },
	}, job, jobID)
}

// SearchParams scopes a search timeline crawl
type SearchParams struct {
	// Account is the handle used in the from: operator
	Account string
	// UserID keeps only tweets by this account when set
	UserID      string
	Since       string
	Until       string
	FilterLinks bool
	JobID       string
}

// Query builds the search query. Dates not in YYYY-MM-DD form are ignored.
func (p SearchParams) Query() string {
	q := "from:" + p.Account
	if p.since() != "" {
		q += " since:" + p.since()
	}
	if p.until() != "" {
		q += " until:" + p.until()
	}
	if p.FilterLinks {
		q += " filter:links"
	}
	return q
}

func (p SearchParams) since() string { return validDate(p.Since) }
func (p SearchParams) until() string { return validDate(p.Until) }

func validDate(d string) string {
	if searchDate.MatchString(d) {
		return d
	}
	return ""
}

// Search crawls the Latest search results for an account within a date range
func (c *Crawler) Search(ctx context.Context, p SearchParams) (*Result, error) {
	if p.Account == "" {
		return nil, errs.InvalidParams("search timeline needs an account")
	}
	if p.Since == "" && p.Until == "" {
		return nil, errs.InvalidParams("invalid process parameters for search timeline: since or until required")
	}
	job, err := c.begin(ctx, p.JobID, checkpoint.PhaseSearch)
	if err != nil {
		return nil, err
	}

	query := p.Query()
	count := c.cfg.SearchPageSize
	c.logger.InfoWithFields("Populating from search timeline", map[string]interface{}{
		"query": query,
		"count": count,
	})

	fetch := func(ctx context.Context, cursor string) (graphql.Node, error) {
		return c.api.SearchPage(ctx, query, count, cursor)
	}
	return c.run(ctx, fetch, Params{
		UserID: p.UserID,
		Label: func(page int) string {
			return fmt.Sprintf("%s..%s:%d", p.since(), p.until(), page)
		},
	}, job, p.JobID)
}

// Recover returns the ids an interrupted crawl of jobID left behind without
// touching the network. The job's temp ids are empty afterwards.
func (c *Crawler) Recover(ctx context.Context, jobID string) (*Result, error) {
	if jobID == "" {
		return nil, errs.InvalidParams("recover needs a job id")
	}
	if c.recorder == nil {
		return nil, errs.InvalidParams("recover needs a job progress store")
	}
	ids, err := c.recorder.Drain(ctx, jobID)
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })
	return &Result{IDs: ids, JobID: jobID}, nil
}

// Finish marks a job done once its ids have been handed off
func (c *Crawler) Finish(ctx context.Context, res *Result) error {
	if res == nil || res.JobID == "" || c.recorder == nil {
		return nil
	}
	job, err := c.recorder.Load(ctx, res.JobID)
	if err != nil || job == nil {
		return err
	}
	return c.recorder.Finish(ctx, job, res.IDs)
}

func (c *Crawler) begin(ctx context.Context, jobID string, phase checkpoint.Phase) (*checkpoint.JobProgress, error) {
	if jobID == "" {
		return nil, nil
	}
	if c.recorder == nil {
		return nil, errs.InvalidParams("job %s needs a job progress store", jobID)
	}
	return c.recorder.Begin(ctx, jobID, phase)
}

func (c *Crawler) run(ctx context.Context, fetch PageFunc, p Params, job *checkpoint.JobProgress, jobID string) (*Result, error) {
	res, err := c.iterator.Run(ctx, fetch, p, job)
	if err != nil {
		return nil, err
	}
	res.JobID = jobID
	return res, nil
}
