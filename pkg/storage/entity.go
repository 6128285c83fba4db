package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"twscraper/pkg/graphql"
)

// EntityKind names the type of a cached API entity
type EntityKind string

const (
	KindTweet EntityKind = "tweet"
	KindUser  EntityKind = "user"
)

// PlatformTwitter is the platform tag for cached twitter entities
const PlatformTwitter = "twitter"

// DefaultEntityTTL is how long a cached entity stays valid
const DefaultEntityTTL = 24 * time.Hour

// EntityStore caches raw API entities by identity. Save upserts; Get
// ignores expired rows.
type EntityStore interface {
	Save(ctx context.Context, records []graphql.Record, idField, platform string, kind EntityKind) error
	Get(ctx context.Context, id, platform string, kind EntityKind) (graphql.Record, bool, error)
}

type entityKey struct {
	platform string
	kind     EntityKind
	id       string
}

type cachedEntity struct {
	data    []byte
	expires time.Time
}

// MemoryEntityStore is a process-local EntityStore
type MemoryEntityStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	items map[entityKey]cachedEntity
}

// NewMemoryEntityStore creates an empty cache
func NewMemoryEntityStore(ttl time.Duration) *MemoryEntityStore {
	if ttl <= 0 {
		ttl = DefaultEntityTTL
	}
	return &MemoryEntityStore{ttl: ttl, now: time.Now, items: make(map[entityKey]cachedEntity)}
}

func (s *MemoryEntityStore) Save(ctx context.Context, records []graphql.Record, idField, platform string, kind EntityKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := s.now().Add(s.ttl)
	for _, rec := range records {
		id, err := recordID(rec, idField)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		s.items[entityKey{platform, kind, id}] = cachedEntity{data: data, expires: expires}
	}
	return nil
}

func (s *MemoryEntityStore) Get(ctx context.Context, id, platform string, kind EntityKind) (graphql.Record, bool, error) {
	s.mu.Lock()
	item, ok := s.items[entityKey{platform, kind, id}]
	s.mu.Unlock()

	if !ok || !s.now().Before(item.expires) {
		return nil, false, nil
	}
	rec, err := decodeRecord(item.data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func recordID(rec graphql.Record, idField string) (string, error) {
	switch v := rec[idField].(type) {
	case string:
		if v != "" {
			return v, nil
		}
	case json.Number:
		return v.String(), nil
	}
	return "", fmt.Errorf("record has no %q field", idField)
}

// decodeRecord keeps numbers as json.Number like the extractor does
func decodeRecord(data []byte) (graphql.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec graphql.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode cached entity: %w", err)
	}
	return rec, nil
}
