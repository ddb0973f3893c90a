package main

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/chatrelay/pkg/journal"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

func NewReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
}

// Activity summarizes one conversation as seen in the journal.
type Activity struct {
	ConversationID string    `json:"conversation_id"`
	Messages       int       `json:"messages"`
	Read           int       `json:"read"`
	LastMessageAt  time.Time `json:"last_message_at"`
}

// Consumer follows the relay journal and keeps per-conversation activity.
type Consumer struct {
	reader Reader
	log    logrus.FieldLogger
	retry  time.Duration

	mu            sync.Mutex
	conversations map[string]*Activity
	events        map[model.EventType]int
}

func NewConsumer(reader Reader, log logrus.FieldLogger) *Consumer {
	return &Consumer{
		reader:        reader,
		log:           log,
		retry:         time.Second,
		conversations: make(map[string]*Activity),
		events:        make(map[model.EventType]int),
	}
}

// Consume reads until ctx is done. Read errors are retried.
func (c *Consumer) Consume(ctx context.Context) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.WithFields(logrus.Fields{"function": "Consume", "error": err}).Warn("Error reading journal, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retry):
			}
			continue
		}

		record, err := journal.Decode(m)
		if err != nil {
			c.log.WithFields(logrus.Fields{"function": "Consume", "error": err}).Warn("Skipping record")
			continue
		}
		if err := c.apply(record); err != nil {
			c.log.WithFields(logrus.Fields{"function": "Consume", "type": record.Type, "error": err}).Warn("Skipping record")
		}
	}
}

func (c *Consumer) apply(r journal.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events[r.Type]++

	switch r.Type {
	case model.EventMessageAppended:
		var appended model.MessageAppended
		if err := json.Unmarshal(r.Data, &appended); err != nil {
			return err
		}
		a := c.activity(appended.Message.ConversationID)
		a.Messages++
		if appended.Message.CreatedAt.After(a.LastMessageAt) {
			a.LastMessageAt = appended.Message.CreatedAt
		}
		c.log.WithFields(logrus.Fields{
			"conversation": appended.Message.ConversationID,
			"message":      appended.Message.ID,
			"from":         appended.From.DisplayName,
		}).Info("Message relayed")

	case model.EventMessageStatusChanged:
		var change model.StatusChange
		if err := json.Unmarshal(r.Data, &change); err != nil {
			return err
		}
		if change.Status == model.StatusRead {
			c.activity(change.ConversationID).Read++
		}
	}
	return nil
}

func (c *Consumer) activity(conversationID string) *Activity {
	a, ok := c.conversations[conversationID]
	if !ok {
		a = &Activity{ConversationID: conversationID}
		c.conversations[conversationID] = a
	}
	return a
}

// Activity returns the summary of every conversation seen, most recent first.
func (c *Consumer) Activity() []Activity {
	c.mu.Lock()
	out := make([]Activity, 0, len(c.conversations))
	for _, a := range c.conversations {
		out = append(out, *a)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageAt.Equal(out[j].LastMessageAt) {
			return out[i].LastMessageAt.After(out[j].LastMessageAt)
		}
		return out[i].ConversationID < out[j].ConversationID
	})
	return out
}

// Events counts the records seen per notification type.
func (c *Consumer) Events() map[model.EventType]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[model.EventType]int, len(c.events))
	for k, v := range c.events {
		out[k] = v
	}
	return out
}

func (c *Consumer) Close() error {
	err := c.reader.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
