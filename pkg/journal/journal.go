// Package journal exports relay notifications to a Kafka topic.
//
// The journal is write only: the relay never replays it, so it gives no
// durability. Per-requester snapshots are not journaled.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueue = 4096
	maxBatch     = 100
)

// Writer is the part of *kafka.Writer the journal uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.Hash{},
	}
}

// Record is a journaled notification as read back by consumers.
type Record struct {
	Type           model.EventType `json:"type"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	At             time.Time       `json:"at"`
}

// Decode parses the value of a journal message.
func Decode(m kafka.Message) (Record, error) {
	var r Record
	if err := json.Unmarshal(m.Value, &r); err != nil {
		return Record{}, fmt.Errorf("decode journal record at offset %d: %w", m.Offset, err)
	}
	return r, nil
}

type Journal struct {
	writer  Writer
	queue   chan model.Notification
	log     logrus.FieldLogger
	dropped atomic.Int64
	written atomic.Int64
}

func New(writer Writer, size int, log logrus.FieldLogger) *Journal {
	if size <= 0 {
		size = DefaultQueue
	}
	return &Journal{
		writer: writer,
		queue:  make(chan model.Notification, size),
		log:    log,
	}
}

func journaled(t model.EventType) bool {
	return t != model.EventContactsSnapshot && t != model.EventHistorySnapshot
}

func (j *Journal) Observe(n model.Notification) {
	if !journaled(n.Type) {
		return
	}
	select {
	case j.queue <- n:
	default:
		j.dropped.Add(1)
	}
}

func (j *Journal) Dropped() int64 { return j.dropped.Load() }
func (j *Journal) Written() int64 { return j.written.Load() }

// Run batches queued notifications into the writer until ctx is done.
func (j *Journal) Run(ctx context.Context) error {
	batch := make([]kafka.Message, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-j.queue:
			batch = append(batch[:0], j.message(n))
		drain:
			for len(batch) < maxBatch {
				select {
				case n := <-j.queue:
					batch = append(batch, j.message(n))
				default:
					break drain
				}
			}

			if err := j.writer.WriteMessages(ctx, batch...); err != nil {
				j.log.WithFields(logrus.Fields{
					"function": "Run",
					"batch":    len(batch),
					"error":    err,
				}).Warn("Failed to write to journal")
				continue
			}
			j.written.Add(int64(len(batch)))
		}
	}
}

// message keys records by conversation, or by user for presence, so one
// partition keeps their order.
func (j *Journal) message(n model.Notification) kafka.Message {
	value, err := json.Marshal(n)
	if err != nil {
		j.log.WithFields(logrus.Fields{"function": "message", "type": n.Type, "error": err}).Error("Failed to encode notification")
	}
	key := n.ConversationID
	if change, ok := n.Data.(model.PresenceChange); ok {
		key = change.UserID
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  n.At,
	}
}

func (j *Journal) Close() error { return j.writer.Close() }
