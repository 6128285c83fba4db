package subscription

import (
	"context"
	"fmt"
	"time"

	"twscraper/pkg/config"
	errs "twscraper/pkg/errors"
	"twscraper/pkg/errsink"
	"twscraper/pkg/logger"
)

// AssetStore moves the retained copy of an element between storage areas
type AssetStore interface {
	Detach(key string) error
	Archive(key string) error
	Remove(key string) error
}

// Reconciler turns discovered ids into elements and advances them through
// their lifecycle
type Reconciler struct {
	store  Store
	assets AssetStore
	sink   errsink.Sink
	cfg    config.SubscriptionConfig
	logger logger.Logger
	now    func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(store Store, assets AssetStore, sink errsink.Sink, cfg config.SubscriptionConfig, log logger.Logger) *Reconciler {
	log = logger.OrNop(log)
	if sink == nil {
		sink = errsink.NewLogSink(log)
	}
	return &Reconciler{store: store, assets: assets, sink: sink, cfg: cfg, logger: log, now: time.Now}
}

// Store returns the underlying store
func (r *Reconciler) Store() Store {
	return r.store
}

func (r *Reconciler) expirationDays(sub *Subscription) int {
	if sub != nil && sub.ExpirationDays > 0 {
		return sub.ExpirationDays
	}
	return r.cfg.ExpirationDays
}

// CreateElements makes one active element per id. Ids that already have
// an element are returned as they are.
func (r *Reconciler) CreateElements(ctx context.Context, sub *Subscription, contentIDs []int64) ([]*Element, error) {
	if len(contentIDs) == 0 {
		return nil, nil
	}
	expires := expiresIn(r.now(), r.expirationDays(sub))
	elements, created, err := r.store.InsertElements(ctx, sub.ID, contentIDs, expires)
	if err != nil {
		return nil, fmt.Errorf("create elements for subscription %d: %w", sub.ID, err)
	}
	r.logger.InfoWithFields("Subscription elements created", map[string]interface{}{
		"subscription_id": sub.ID,
		"requested":       len(contentIDs),
		"created":         created,
	})
	return elements, nil
}

// Link records the retained asset of an element. When the fingerprint
// matches content that is already retained, or was deleted or archived, the
// element becomes a duplicate and the new copy is removed.
func (r *Reconciler) Link(ctx context.Context, sub *Subscription, e *Element, assetKey, fingerprint string) error {
	if e.Status == StatusError {
		if err := e.transition(StatusActive); err != nil {
			return err
		}
	}

	known, err := r.store.FingerprintKnown(ctx, fingerprint, e.ID)
	if err != nil {
		return fmt.Errorf("check fingerprint: %w", err)
	}

	if known {
		if err := e.transition(StatusDuplicate); err != nil {
			return err
		}
		if err := r.assets.Remove(assetKey); err != nil {
			r.logger.WarnWithFields("Failed to remove duplicate asset", map[string]interface{}{
				"element_id": e.ID,
				"asset_key":  assetKey,
				"error":      err.Error(),
			})
		}
		e.Fingerprint = fingerprint
		e.AssetKey = ""
		e.Expires = nil
		r.logger.InfoWithFields("Element is a duplicate", map[string]interface{}{
			"element_id":  e.ID,
			"fingerprint": fingerprint,
		})
		return r.store.UpdateElement(ctx, e)
	}

	if err := e.transition(StatusActive); err != nil {
		return err
	}
	e.AssetKey = assetKey
	e.Fingerprint = fingerprint
	r.applyKeep(sub, e, KeepNone)
	return r.store.UpdateElement(ctx, e)
}

// SetKeep records a retention decision and resets the expiry to match it
func (r *Reconciler) SetKeep(ctx context.Context, sub *Subscription, e *Element, keep Keep) error {
	if e.Status.Terminal() {
		return errs.InvalidParams("element %d is %s and cannot change keep", e.ID, e.Status)
	}
	if _, err := keep.MarshalText(); err != nil {
		return errs.InvalidParams("%v", err)
	}
	r.applyKeep(sub, e, keep)
	return r.store.UpdateElement(ctx, e)
}

func (r *Reconciler) applyKeep(sub *Subscription, e *Element, keep Keep) {
	now := r.now()
	e.Keep = keep
	switch keep {
	case KeepYes, KeepArchive:
		e.Expires = expiresIn(now, 1)
	case KeepNo:
		e.Expires = expiresIn(now, 7)
	case KeepMaybe:
		e.Expires = nil
	default:
		e.Expires = expiresIn(now, r.expirationDays(sub))
	}
}

// MarkError moves an element into error and attaches the error record
func (r *Reconciler) MarkError(ctx context.Context, e *Element, origin, message string) error {
	if err := e.transition(StatusError); err != nil {
		return err
	}
	if id := r.sink.RecordError(ctx, origin, message); id != 0 {
		e.ErrorIDs = append(e.ErrorIDs, id)
	}
	return r.store.UpdateElement(ctx, e)
}

// MarkSubscriptionError flags a subscription as needing attention
func (r *Reconciler) MarkSubscriptionError(ctx context.Context, sub *Subscription, origin, message string) error {
	sub.Status = SubscriptionError
	if id := r.sink.RecordError(ctx, origin, message); id != 0 {
		sub.ErrorIDs = append(sub.ErrorIDs, id)
	}
	r.logger.WarnWithFields("Subscription marked as error", map[string]interface{}{
		"subscription_id": sub.ID,
		"origin":          origin,
		"message":         message,
	})
	return r.store.UpdateSubscription(ctx, sub)
}
