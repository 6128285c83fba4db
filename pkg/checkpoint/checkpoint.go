package checkpoint

import (
	"context"
	"fmt"
	"time"

	"twscraper/pkg/logger"
)

// Phase is the traversal mode a job's ids were collected in
type Phase string

const (
	PhaseMedia  Phase = "media"
	PhaseSearch Phase = "search"
)

// Stage marks how far a job got
type Stage string

const (
	StageQuerying Stage = "querying"
	StageDone     Stage = "done"
)

// JobProgress is the persisted state of one crawl job
type JobProgress struct {
	JobID string `json:"job_id"`
	Phase Phase  `json:"timeline"`
	Stage Stage  `json:"stage"`
	// Range labels the page being fetched, e.g. "media:3"
	Range     string    `json:"range,omitempty"`
	IDs       []int64   `json:"ids,omitempty"`
	TempIDs   []int64   `json:"temp_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists job progress by job id
type Store interface {
	// Load returns nil without error when the job has no record
	Load(ctx context.Context, jobID string) (*JobProgress, error)
	Save(ctx context.Context, p *JobProgress) error
	// Drain atomically returns and clears the temp ids of a job
	Drain(ctx context.Context, jobID string) ([]int64, error)
	Delete(ctx context.Context, jobID string) error
}

// Recorder applies the job progress rules on top of a Store
type Recorder struct {
	store  Store
	logger logger.Logger
	now    func() time.Time
}

// NewRecorder creates a recorder over store
func NewRecorder(store Store, log logger.Logger) *Recorder {
	return &Recorder{store: store, logger: logger.OrNop(log), now: time.Now}
}

// Begin loads or creates the job record for phase. Ids gathered under a
// different phase are discarded before the new phase is written.
func (r *Recorder) Begin(ctx context.Context, jobID string, phase Phase) (*JobProgress, error) {
	p, err := r.store.Load(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}
	now := r.now()
	if p == nil {
		p = &JobProgress{JobID: jobID, CreatedAt: now}
	}
	if p.Phase != phase {
		if p.Phase != "" {
			r.logger.InfoWithFields("Job phase changed, discarding progress", map[string]interface{}{
				"job_id":    jobID,
				"from":      string(p.Phase),
				"to":        string(phase),
				"discarded": len(p.IDs) + len(p.TempIDs),
			})
		}
		p.IDs = nil
		p.TempIDs = nil
		p.Range = ""
		p.Phase = phase
	}
	p.Stage = StageQuerying
	return p, r.save(ctx, p)
}

// SaveTempIDs records the ids accumulated so far
func (r *Recorder) SaveTempIDs(ctx context.Context, p *JobProgress, ids []int64) error {
	p.TempIDs = append([]int64(nil), ids...)
	r.logger.DebugWithFields("Saving temp ids", map[string]interface{}{
		"job_id": p.JobID,
		"count":  len(ids),
	})
	return r.save(ctx, p)
}

// UpdateRange records the label of the page being fetched
func (r *Recorder) UpdateRange(ctx context.Context, p *JobProgress, label string) error {
	p.Range = label
	return r.save(ctx, p)
}

// Finish stores the final ids and clears the temp ids
func (r *Recorder) Finish(ctx context.Context, p *JobProgress, ids []int64) error {
	p.IDs = append([]int64(nil), ids...)
	p.TempIDs = nil
	p.Stage = StageDone
	return r.save(ctx, p)
}

// Drain hands back the temp ids an interrupted crawl left behind and
// clears them, so a second drain returns nothing.
func (r *Recorder) Drain(ctx context.Context, jobID string) ([]int64, error) {
	ids, err := r.store.Drain(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("drain job %s: %w", jobID, err)
	}
	r.logger.InfoWithFields("Recovered temp ids", map[string]interface{}{
		"job_id": jobID,
		"count":  len(ids),
	})
	return ids, nil
}

// Load returns the job record, or nil when there is none
func (r *Recorder) Load(ctx context.Context, jobID string) (*JobProgress, error) {
	return r.store.Load(ctx, jobID)
}

func (r *Recorder) save(ctx context.Context, p *JobProgress) error {
	p.UpdatedAt = r.now()
	if err := r.store.Save(ctx, p); err != nil {
		return fmt.Errorf("save job %s: %w", p.JobID, err)
	}
	return nil
}

func clone(p *JobProgress) *JobProgress {
	c := *p
	c.IDs = append([]int64(nil), p.IDs...)
	c.TempIDs = append([]int64(nil), p.TempIDs...)
	return &c
}
