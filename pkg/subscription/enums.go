package subscription

import (
	"fmt"
	"strings"
)

// ElementStatus is the lifecycle state of a subscription element
type ElementStatus int16

const (
	StatusActive ElementStatus = iota + 1
	StatusUnlinked
	StatusDeleted
	StatusArchived
	StatusError
	StatusDuplicate
)

var elementStatusNames = map[ElementStatus]string{
	StatusActive:    "active",
	StatusUnlinked:  "unlinked",
	StatusDeleted:   "deleted",
	StatusArchived:  "archived",
	StatusError:     "error",
	StatusDuplicate: "duplicate",
}

// ElementStatusFromID validates a stored status id
func ElementStatusFromID(id int16) (ElementStatus, error) {
	s := ElementStatus(id)
	if _, ok := elementStatusNames[s]; !ok {
		return 0, fmt.Errorf("unknown element status id %d", id)
	}
	return s, nil
}

// ParseElementStatus looks a status up by name
func ParseElementStatus(name string) (ElementStatus, error) {
	for s, n := range elementStatusNames {
		if n == strings.ToLower(name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown element status %q", name)
}

func (s ElementStatus) String() string {
	if n, ok := elementStatusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

// Terminal reports whether no transition leaves s
func (s ElementStatus) Terminal() bool {
	return s == StatusDeleted || s == StatusArchived || s == StatusDuplicate
}

func (s ElementStatus) MarshalText() ([]byte, error) {
	if _, ok := elementStatusNames[s]; !ok {
		return nil, fmt.Errorf("unknown element status id %d", int16(s))
	}
	return []byte(s.String()), nil
}

func (s *ElementStatus) UnmarshalText(text []byte) error {
	v, err := ParseElementStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Keep is the retention decision on an element. KeepNone means undecided
// and is stored as NULL.
type Keep int16

const (
	KeepNone Keep = iota
	KeepYes
	KeepNo
	KeepMaybe
	KeepArchive
)

var keepNames = map[Keep]string{
	KeepYes:     "yes",
	KeepNo:      "no",
	KeepMaybe:   "maybe",
	KeepArchive: "archive",
}

// KeepFromID validates a stored keep id; nil means undecided
func KeepFromID(id *int16) (Keep, error) {
	if id == nil {
		return KeepNone, nil
	}
	k := Keep(*id)
	if _, ok := keepNames[k]; !ok {
		return 0, fmt.Errorf("unknown keep id %d", *id)
	}
	return k, nil
}

// ParseKeep looks a keep decision up by name. "none" and "" are undecided.
func ParseKeep(name string) (Keep, error) {
	name = strings.ToLower(name)
	if name == "" || name == "none" {
		return KeepNone, nil
	}
	for k, n := range keepNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown keep value %q", name)
}

// ID returns the stored form of k
func (k Keep) ID() *int16 {
	if k == KeepNone {
		return nil
	}
	id := int16(k)
	return &id
}

func (k Keep) String() string {
	if k == KeepNone {
		return "none"
	}
	if n, ok := keepNames[k]; ok {
		return n
	}
	return fmt.Sprintf("keep(%d)", int16(k))
}

func (k Keep) MarshalText() ([]byte, error) {
	if _, ok := keepNames[k]; !ok && k != KeepNone {
		return nil, fmt.Errorf("unknown keep id %d", int16(k))
	}
	return []byte(k.String()), nil
}

func (k *Keep) UnmarshalText(text []byte) error {
	v, err := ParseKeep(string(text))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Status is the scheduling state of a subscription
type Status int16

const (
	SubscriptionIdle Status = iota + 1
	SubscriptionRetired
	SubscriptionAutomatic
	SubscriptionManual
	SubscriptionError
)

var statusNames = map[Status]string{
	SubscriptionIdle:      "idle",
	SubscriptionRetired:   "retired",
	SubscriptionAutomatic: "automatic",
	SubscriptionManual:    "manual",
	SubscriptionError:     "error",
}

// StatusFromID validates a stored subscription status id
func StatusFromID(id int16) (Status, error) {
	s := Status(id)
	if _, ok := statusNames[s]; !ok {
		return 0, fmt.Errorf("unknown subscription status id %d", id)
	}
	return s, nil
}

// ParseStatus looks a subscription status up by name
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == strings.ToLower(name) {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown subscription status %q", name)
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int16(s))
}

func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, fmt.Errorf("unknown subscription status id %d", int16(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	v, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}
