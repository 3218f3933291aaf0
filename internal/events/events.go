// Package events publishes ledger notifications after postings commit.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event types.
const (
	TypePosted   = "gl.posted"
	TypeReversed = "gl.reversed"
)

// LedgerEvent describes a committed header.
type LedgerEvent struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	OrgID       int64     `json:"org_id"`
	ActorID     int64     `json:"actor_id"`
	HeaderID    int64     `json:"header_id"`
	SourceType  string    `json:"source_type"`
	SourceID    string    `json:"source_id"`
	DocumentID  int64     `json:"document_id,omitempty"`
	PostingDate string    `json:"posting_date"`
	TotalDebit  string    `json:"total_debit"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// NewLedgerEvent stamps an id and time.
func NewLedgerEvent(eventType string, at time.Time) LedgerEvent {
	return LedgerEvent{ID: uuid.NewString(), Type: eventType, OccurredAt: at.UTC()}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event LedgerEvent) error
}

// messageWriter is the part of kafka.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to one topic keyed by org so each org's
// events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher builds a publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event LedgerEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(event.OrgID, 10)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.Type)},
			{Key: "event-id", Value: []byte(event.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: publish %s: %w", event.Type, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []LedgerEvent
}

func (r *Recorder) Publish(_ context.Context, event LedgerEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything published.
func (r *Recorder) Events() []LedgerEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LedgerEvent(nil), r.events...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, LedgerEvent) error { return nil }
