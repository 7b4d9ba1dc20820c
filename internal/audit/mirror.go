package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Mirror publishes committed audit records to a Kafka topic for downstream
// compliance consumers. The database remains the source of truth; the mirror
// is fire-and-forget and must never gate an append.
type Mirror struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewMirror connects to the brokers and ensures the topic exists.
func NewMirror(ctx context.Context, brokers []string, topic string, logger *slog.Logger) (*Mirror, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create audit topic: %w", err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			client.Close()
			return nil, fmt.Errorf("create audit topic %s: %w", r.Topic, r.Err)
		}
	}
	return &Mirror{client: client, topic: topic, logger: logger}, nil
}

// mirrorPayload is the JSON shape published per record.
type mirrorPayload struct {
	ID         string         `json:"id"`
	Seq        int64          `json:"seq"`
	ActorID    string         `json:"actor_id,omitempty"`
	Action     string         `json:"action"`
	TargetType string         `json:"target_type"`
	TargetID   string         `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"created_at"`
}

// Publish produces one record asynchronously. Errors are logged, not returned
// to the hot path.
func (m *Mirror) Publish(ctx context.Context, record Record) {
	payload := mirrorPayload{
		ID:         record.ID.String(),
		Seq:        record.Seq,
		Action:     string(record.Action),
		TargetType: record.TargetType,
		TargetID:   record.TargetID,
		Metadata:   record.Metadata,
		CreatedAt:  record.CreatedAt.Format(time.RFC3339Nano),
	}
	if record.ActorID != nil {
		payload.ActorID = record.ActorID.String()
	}
	value, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("marshal audit mirror payload", "error", err)
		return
	}

	// Key by target so per-entity ordering survives partitioning.
	m.client.Produce(ctx, &kgo.Record{Key: []byte(record.TargetID), Value: value},
		func(_ *kgo.Record, err error) {
			if err != nil {
				m.logger.Error("audit mirror produce failed",
					"action", string(record.Action), "error", err)
			}
		})
}

// Close flushes pending produces and releases the client.
func (m *Mirror) Close(ctx context.Context) {
	if err := m.client.Flush(ctx); err != nil {
		m.logger.Warn("audit mirror flush incomplete", "error", err)
	}
	m.client.Close()
}

// Sink abstracts the mirror so the worker is testable without brokers.
type Sink interface {
	Publish(ctx context.Context, record Record)
}

// Worker drains the writer's mirror channel into a sink.
type Worker struct {
	sink  Sink
	inbox <-chan Record
}

func NewWorker(sink Sink, inbox <-chan Record) *Worker {
	return &Worker{sink: sink, inbox: inbox}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case record := <-w.inbox:
			w.sink.Publish(ctx, record)
		}
	}
}
