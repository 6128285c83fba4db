// Package events publishes crawl outcomes to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"twscraper/pkg/config"
	"twscraper/pkg/logger"
)

// CrawlCompleted describes one finished subscription sync
type CrawlCompleted struct {
	SubscriptionID int64     `json:"subscription_id"`
	AccountID      string    `json:"account_id"`
	Handle         string    `json:"handle"`
	JobID          string    `json:"job_id"`
	Phase          string    `json:"phase"`
	Discovered     int       `json:"discovered"`
	Linked         int       `json:"linked"`
	Failed         int       `json:"failed"`
	NothingFound   bool      `json:"nothing_found"`
	LastID         int64     `json:"last_id"`
	Error          string    `json:"error,omitempty"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Publisher delivers crawl events
type Publisher interface {
	PublishCrawl(ctx context.Context, ev CrawlCompleted) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by subscription id
type KafkaPublisher struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaPublisher creates a publisher for the configured brokers and topic
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			AllowAutoTopicCreation: false,
		},
		logger: logger.OrNop(log),
	}
}

// NewKafkaPublisherWithWriter builds a publisher over a custom writer
func NewKafkaPublisherWithWriter(writer messageWriter, log logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, logger: logger.OrNop(log)}
}

// PublishCrawl writes one crawl event
func (p *KafkaPublisher) PublishCrawl(ctx context.Context, ev CrawlCompleted) error {
	if ev.FinishedAt.IsZero() {
		ev.FinishedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode crawl event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.SubscriptionID, 10)),
		Value: payload,
		Time:  ev.FinishedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish crawl event: %w", err)
	}

	p.logger.DebugWithFields("Crawl event published", map[string]interface{}{
		"subscription_id": ev.SubscriptionID,
		"job_id":          ev.JobID,
	})
	return nil
}

// Close shuts down the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event
type Nop struct{}

func (Nop) PublishCrawl(ctx context.Context, ev CrawlCompleted) error { return nil }
func (Nop) Close() error                                              { return nil }

// New returns a Kafka publisher when enabled, otherwise Nop
func New(cfg config.KafkaConfig, log logger.Logger) Publisher {
	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		return Nop{}
	}
	return NewKafkaPublisher(cfg, log)
}
