package subscription

import (
	"context"
	"fmt"
	"time"

	errs "twscraper/pkg/errors"
	"twscraper/pkg/logger"
)

// SweepKind names one of the periodic lifecycle sweeps
type SweepKind string

const (
	SweepUnlink  SweepKind = "unlink"
	SweepDelete  SweepKind = "delete"
	SweepArchive SweepKind = "archive"
	SweepRetry   SweepKind = "retry"
)

// SweepKinds lists every sweep in the order a full pass runs them
var SweepKinds = []SweepKind{SweepRetry, SweepArchive, SweepUnlink, SweepDelete}

// ParseSweepKind validates a sweep name
func ParseSweepKind(name string) (SweepKind, error) {
	for _, k := range SweepKinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", errs.InvalidParams("unknown sweep %q", name)
}

// SweepResult summarizes one sweep run
type SweepResult struct {
	Kind      SweepKind `json:"kind"`
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	Pages     int       `json:"pages"`
}

func (r *Reconciler) filter(kind SweepKind, now time.Time) ElementFilter {
	switch kind {
	case SweepUnlink:
		return ElementFilter{
			Statuses:      []ElementStatus{StatusActive},
			Keeps:         []Keep{KeepNo, KeepMaybe},
			Undecided:     r.cfg.ExpiredAction == "unlink",
			ExpiredBefore: now,
		}
	case SweepDelete:
		return ElementFilter{
			Statuses:      []ElementStatus{StatusUnlinked},
			ExpiredBefore: now,
		}
	case SweepArchive:
		return ElementFilter{
			Statuses:      []ElementStatus{StatusActive, StatusUnlinked, StatusError},
			Keeps:         []Keep{KeepArchive},
			Undecided:     r.cfg.ExpiredAction == "archive",
			ExpiredBefore: now,
		}
	default:
		return ElementFilter{Statuses: []ElementStatus{StatusError}}
	}
}

// Sweep runs one sweep over bounded batches. Without manual it stops after
// the configured number of pages; manual runs until nothing matches.
// Running a sweep twice leaves the same end state as running it once.
func (r *Reconciler) Sweep(ctx context.Context, kind SweepKind, manual bool) (*SweepResult, error) {
	if _, err := ParseSweepKind(string(kind)); err != nil {
		return nil, err
	}
	start := time.Now()
	now := r.now()
	filter := r.filter(kind, now)
	pageSize := r.cfg.SweepPageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	res := &SweepResult{Kind: kind}
	subs := make(map[int64]*Subscription)
	var afterID int64

	for manual || res.Pages < r.cfg.SweepMaxPages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		batch, err := r.store.ElementBatch(ctx, filter, afterID, pageSize)
		if err != nil {
			return res, fmt.Errorf("%s sweep batch: %w", kind, err)
		}
		if len(batch) == 0 {
			break
		}
		res.Pages++

		for _, e := range batch {
			afterID = e.ID
			if err := r.apply(ctx, kind, e, now, subs); err != nil {
				res.Failed++
				r.logger.WarnWithFields("Sweep step failed", map[string]interface{}{
					"sweep":      string(kind),
					"element_id": e.ID,
					"error":      err.Error(),
				})
				if markErr := r.MarkError(ctx, e, "sweep:"+string(kind), err.Error()); markErr != nil {
					return res, markErr
				}
				continue
			}
			res.Processed++
		}
		if len(batch) < pageSize {
			break
		}
	}

	logger.LogSweep(r.logger, string(kind), res.Processed, time.Since(start))
	return res, nil
}

// apply performs one sweep transition. The asset move happens first and
// is idempotent, so a crash between it and the update is repaired by the
// next run.
func (r *Reconciler) apply(ctx context.Context, kind SweepKind, e *Element, now time.Time, subs map[int64]*Subscription) error {
	switch kind {
	case SweepUnlink:
		if e.AssetKey != "" {
			if err := r.assets.Detach(e.AssetKey); err != nil {
				return fmt.Errorf("detach asset: %w", err)
			}
		}
		if err := e.transition(StatusUnlinked); err != nil {
			return err
		}
		e.Expires = expiresIn(now, r.cfg.UnlinkGraceDays)

	case SweepDelete:
		if e.AssetKey != "" {
			if err := r.assets.Remove(e.AssetKey); err != nil {
				return fmt.Errorf("remove asset: %w", err)
			}
		}
		if err := e.transition(StatusDeleted); err != nil {
			return err
		}
		e.Expires = nil

	case SweepArchive:
		if e.AssetKey != "" {
			if err := r.assets.Archive(e.AssetKey); err != nil {
				return fmt.Errorf("archive asset: %w", err)
			}
		}
		if err := e.transition(StatusArchived); err != nil {
			return err
		}
		e.Expires = nil

	case SweepRetry:
		sub, ok := subs[e.SubscriptionID]
		if !ok {
			var err error
			if sub, err = r.store.GetSubscription(ctx, e.SubscriptionID); err != nil {
				return err
			}
			subs[e.SubscriptionID] = sub
		}
		if err := e.transition(StatusActive); err != nil {
			return err
		}
		e.Expires = expiresIn(now, r.expirationDays(sub))
		e.ErrorIDs = nil
	}
	return r.store.UpdateElement(ctx, e)
}
