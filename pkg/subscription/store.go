package subscription

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	errs "twscraper/pkg/errors"
)

// ErrNotFound is returned for missing subscriptions and elements
var ErrNotFound = errs.New(errs.ErrorTypeNotFound, "not found")

// ElementFilter selects elements for a sweep batch
type ElementFilter struct {
	Statuses []ElementStatus
	// Keeps restricts the keep decision; empty means any
	Keeps []Keep
	// Undecided also matches elements without a keep decision when Keeps
	// is set
	Undecided bool
	// ExpiredBefore matches only elements whose expiry is before it
	ExpiredBefore time.Time
}

func (f ElementFilter) matches(e *Element) bool {
	if !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Keeps) > 0 {
		decided := e.Keep != KeepNone && containsKeep(f.Keeps, e.Keep)
		if !decided && !(f.Undecided && e.Keep == KeepNone) {
			return false
		}
	}
	if !f.ExpiredBefore.IsZero() && (e.Expires == nil || !e.Expires.Before(f.ExpiredBefore)) {
		return false
	}
	return true
}

func containsStatus(list []ElementStatus, s ElementStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsKeep(list []Keep, k Keep) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}

// Store persists subscriptions and their elements. Batch queries are
// ordered by primary key and resume after the given id.
type Store interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id int64) (*Subscription, error)
	ListSubscriptions(ctx context.Context) ([]*Subscription, error)
	// DueSubscriptions returns active subscriptions whose requery time has
	// passed, excluding retired ones
	DueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*Subscription, error)
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	DeleteSubscription(ctx context.Context, id int64) error

	// InsertElements creates missing (subscription, content) pairs and
	// returns the element of every requested id
	InsertElements(ctx context.Context, subID int64, contentIDs []int64, expires *time.Time) ([]*Element, int, error)
	GetElement(ctx context.Context, id int64) (*Element, error)
	ListElements(ctx context.Context, subID, afterID int64, limit int) ([]*Element, error)
	UpdateElement(ctx context.Context, e *Element) error
	// FingerprintKnown reports whether another element with this
	// fingerprint holds a retained asset or was already deleted or archived
	FingerprintKnown(ctx context.Context, fingerprint string, exceptID int64) (bool, error)
	ElementBatch(ctx context.Context, f ElementFilter, afterID int64, limit int) ([]*Element, error)
}

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu       sync.Mutex
	subs     map[int64]*Subscription
	elements map[int64]*Element
	nextSub  int64
	nextElem int64
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subs:     make(map[int64]*Subscription),
		elements: make(map[int64]*Element),
		now:      time.Now,
	}
}

func copySub(s *Subscription) *Subscription {
	c := *s
	c.ErrorIDs = append([]int64(nil), s.ErrorIDs...)
	return &c
}

func copyElement(e *Element) *Element {
	c := *e
	c.ErrorIDs = append([]int64(nil), e.ErrorIDs...)
	return &c
}

func (s *MemoryStore) CreateSubscription(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.AccountID == sub.AccountID {
			return errs.InvalidParams("subscription for account %s already exists", sub.AccountID)
		}
	}
	s.nextSub++
	sub.ID = s.nextSub
	sub.CreatedAt = s.now()
	sub.UpdatedAt = sub.CreatedAt
	s.subs[sub.ID] = copySub(sub)
	return nil
}

func (s *MemoryStore) GetSubscription(ctx context.Context, id int64) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySub(sub), nil
}

func (s *MemoryStore) ListSubscriptions(ctx context.Context) ([]*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, copySub(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) DueSubscriptions(ctx context.Context, now time.Time, limit int) ([]*Subscription, error) {
	all, _ := s.ListSubscriptions(ctx)
	var due []*Subscription
	for _, sub := range all {
		if !sub.Active || sub.Status == SubscriptionRetired {
			continue
		}
		if sub.RequeryAt != nil && sub.RequeryAt.After(now) {
			continue
		}
		due = append(due, sub)
		if limit > 0 && len(due) == limit {
			break
		}
	}
	return due, nil
}

func (s *MemoryStore) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	sub.UpdatedAt = s.now()
	s.subs[sub.ID] = copySub(sub)
	return nil
}

func (s *MemoryStore) DeleteSubscription(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
	for eid, e := range s.elements {
		if e.SubscriptionID == id {
			delete(s.elements, eid)
		}
	}
	return nil
}

func (s *MemoryStore) InsertElements(ctx context.Context, subID int64, contentIDs []int64, expires *time.Time) ([]*Element, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[subID]; !ok {
		return nil, 0, ErrNotFound
	}

	byContent := make(map[int64]*Element)
	for _, e := range s.elements {
		if e.SubscriptionID == subID {
			byContent[e.ContentID] = e
		}
	}

	created := 0
	out := make([]*Element, 0, len(contentIDs))
	for _, cid := range contentIDs {
		e, ok := byContent[cid]
		if !ok {
			s.nextElem++
			e = &Element{
				ID:             s.nextElem,
				SubscriptionID: subID,
				ContentID:      cid,
				Status:         StatusActive,
				CreatedAt:      s.now(),
			}
			if expires != nil {
				t := *expires
				e.Expires = &t
			}
			e.UpdatedAt = e.CreatedAt
			s.elements[e.ID] = e
			byContent[cid] = e
			created++
		}
		out = append(out, copyElement(e))
	}
	return out, created, nil
}

func (s *MemoryStore) GetElement(ctx context.Context, id int64) (*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.elements[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyElement(e), nil
}

func (s *MemoryStore) sortedElements(keep func(*Element) bool, afterID int64, limit int) []*Element {
	var out []*Element
	for _, e := range s.elements {
		if e.ID > afterID && keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i, e := range out {
		out[i] = copyElement(e)
	}
	return out
}

func (s *MemoryStore) ListElements(ctx context.Context, subID, afterID int64, limit int) ([]*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedElements(func(e *Element) bool { return e.SubscriptionID == subID }, afterID, limit), nil
}

func (s *MemoryStore) UpdateElement(ctx context.Context, e *Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elements[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = s.now()
	s.elements[e.ID] = copyElement(e)
	return nil
}

func (s *MemoryStore) FingerprintKnown(ctx context.Context, fingerprint string, exceptID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.elements {
		if e.ID == exceptID || e.Fingerprint != fingerprint {
			continue
		}
		switch e.Status {
		case StatusDeleted, StatusArchived:
			return true, nil
		case StatusActive, StatusUnlinked:
			if e.AssetKey != "" {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *MemoryStore) ElementBatch(ctx context.Context, f ElementFilter, afterID int64, limit int) ([]*Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedElements(f.matches, afterID, limit), nil
}

// IsNotFound reports whether err is a missing subscription or element
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errs.Is(err, errs.ErrorTypeNotFound)
}
