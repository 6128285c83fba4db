// Package errsink records errors that need an operator's attention. Sinks
// are append-only and never fail the caller: a sink that cannot store a
// record logs it and returns a zero id.
package errsink

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"twscraper/pkg/logger"
)

// Record is one stored error
type Record struct {
	ID        int64     `json:"id"`
	Origin    string    `json:"origin"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink stores error records
type Sink interface {
	// RecordError stores the error and returns its id, or 0 when the sink
	// keeps no ids or the write failed.
	RecordError(ctx context.Context, origin, message string) int64
}

// LogSink writes records to the log only
type LogSink struct {
	logger logger.Logger
}

// NewLogSink creates a sink over log
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: logger.OrNop(log)}
}

func (s *LogSink) RecordError(ctx context.Context, origin, message string) int64 {
	s.logger.ErrorWithFields("Recorded error", map[string]interface{}{
		"origin":  origin,
		"message": message,
	})
	return 0
}

// MemorySink keeps records in process memory
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	now     func() time.Time
}

// NewMemorySink creates an empty sink
func NewMemorySink() *MemorySink {
	return &MemorySink{now: time.Now}
}

func (s *MemorySink) RecordError(ctx context.Context, origin, message string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := int64(len(s.records) + 1)
	s.records = append(s.records, Record{ID: id, Origin: origin, Message: message, CreatedAt: s.now()})
	return id
}

// Records returns a copy of everything recorded so far
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink stores records in the error_record table
type PostgresSink struct {
	pool   queryRower
	logger logger.Logger
}

// NewPostgresSink creates a sink over a pgx pool
func NewPostgresSink(pool queryRower, log logger.Logger) *PostgresSink {
	return &PostgresSink{pool: pool, logger: logger.OrNop(log)}
}

func (s *PostgresSink) RecordError(ctx context.Context, origin, message string) int64 {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO error_record (origin, message) VALUES ($1, $2) RETURNING id`,
		origin, message).Scan(&id)
	if err != nil {
		s.logger.ErrorWithFields("Failed to store error record", map[string]interface{}{
			"origin":  origin,
			"message": message,
			"error":   err.Error(),
		})
		return 0
	}
	return id
}

// Multi fans a record out to several sinks
type Multi []Sink

func (m Multi) RecordError(ctx context.Context, origin, message string) int64 {
	var id int64
	for _, s := range m {
		if got := s.RecordError(ctx, origin, message); id == 0 {
			id = got
		}
	}
	return id
}
