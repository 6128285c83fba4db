package subscription

import (
	"fmt"
	"time"
)

// Subscription tracks one platform account
type Subscription struct {
	ID        int64  `json:"id"`
	AccountID string `json:"account_id"`
	Handle    string `json:"handle"`
	// LastID is the highest content id already reconciled
	LastID         int64      `json:"last_id"`
	ExpirationDays int        `json:"expiration_days"`
	Status         Status     `json:"status"`
	Active         bool       `json:"active"`
	RequeryAt      *time.Time `json:"requery_at,omitempty"`
	ErrorIDs       []int64    `json:"error_ids,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Element links a discovered content item to its subscription
type Element struct {
	ID             int64         `json:"id"`
	SubscriptionID int64         `json:"subscription_id"`
	ContentID      int64         `json:"content_id"`
	Status         ElementStatus `json:"status"`
	Keep           Keep          `json:"keep"`
	Fingerprint    string        `json:"fingerprint,omitempty"`
	AssetKey       string        `json:"asset_key,omitempty"`
	Expires        *time.Time    `json:"expires,omitempty"`
	ErrorIDs       []int64       `json:"error_ids,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// transitions lists the allowed moves out of each status
var transitions = map[ElementStatus][]ElementStatus{
	StatusActive:   {StatusUnlinked, StatusArchived, StatusError, StatusDuplicate},
	StatusUnlinked: {StatusDeleted, StatusArchived, StatusError},
	StatusError:    {StatusActive, StatusArchived},
}

// CanTransition reports whether an element may move from one status to
// another. Staying in place is always allowed.
func CanTransition(from, to ElementStatus) bool {
	if from == to {
		return true
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// InvalidTransitionError is returned for a move the state machine forbids
type InvalidTransitionError struct {
	ElementID int64
	From, To  ElementStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("element %d: cannot move from %s to %s", e.ElementID, e.From, e.To)
}

// transition moves e to status to, or fails without touching e
func (e *Element) transition(to ElementStatus) error {
	if !CanTransition(e.Status, to) {
		return &InvalidTransitionError{ElementID: e.ID, From: e.Status, To: to}
	}
	e.Status = to
	return nil
}

func expiresIn(now time.Time, days int) *time.Time {
	t := now.AddDate(0, 0, days)
	return &t
}
