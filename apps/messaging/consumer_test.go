package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu       sync.Mutex
	messages []kafka.Message
	errs     []error
	closed   bool
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.errs) > 0 {
		err := r.errs[0]
		r.errs = r.errs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages) == 0 && len(r.errs) == 0
}

func record(t *testing.T, n model.Notification) kafka.Message {
	value, err := json.Marshal(n)
	require.NoError(t, err)
	return kafka.Message{Value: value}
}

func TestConsumer_TracksActivity(t *testing.T) {
	req := require.New(t)
	logger, _ := test.NewNullLogger()
	early := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)

	reader := &fakeReader{
		errs: []error{errors.New("leader not available")},
		messages: []kafka.Message{
			record(t, model.Notification{Type: model.EventMessageAppended, ConversationID: "team", Data: model.MessageAppended{
				Message: model.Message{ID: snowflake.ID(1), ConversationID: "team", CreatedAt: early},
			}}),
			{Value: []byte("garbage")},
			record(t, model.Notification{Type: model.EventMessageAppended, ConversationID: "dm:a:b", Data: model.MessageAppended{
				Message: model.Message{ID: snowflake.ID(2), ConversationID: "dm:a:b", CreatedAt: late},
			}}),
			record(t, model.Notification{Type: model.EventMessageStatusChanged, ConversationID: "team", Data: model.StatusChange{
				ConversationID: "team", MessageID: snowflake.ID(1), Status: model.StatusDelivered,
			}}),
			record(t, model.Notification{Type: model.EventMessageStatusChanged, ConversationID: "team", Data: model.StatusChange{
				ConversationID: "team", MessageID: snowflake.ID(1), Status: model.StatusRead,
			}}),
			record(t, model.Notification{Type: model.EventTypingStarted, ConversationID: "team"}),
		},
	}
	c := NewConsumer(reader, logger)
	c.retry = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Consume(ctx) }()

	req.Eventually(reader.drained, time.Second, 5*time.Millisecond)
	cancel()
	req.ErrorIs(<-done, context.Canceled)

	activity := c.Activity()
	req.Len(activity, 2)
	req.Equal("dm:a:b", activity[0].ConversationID)
	req.Equal(1, activity[0].Messages)
	req.Equal("team", activity[1].ConversationID)
	req.Equal(1, activity[1].Messages)
	req.Equal(1, activity[1].Read)

	events := c.Events()
	req.Equal(2, events[model.EventMessageAppended])
	req.Equal(2, events[model.EventMessageStatusChanged])
	req.Equal(1, events[model.EventTypingStarted])

	req.NoError(c.Close())
	req.True(reader.closed)
}
