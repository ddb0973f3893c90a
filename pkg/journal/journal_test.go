package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	fail     error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail != nil {
		return w.fail
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.messages)
}

func run(t *testing.T, j *Journal) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestJournal_WritesSharedNotifications(t *testing.T) {
	req := require.New(t)
	logger, _ := test.NewNullLogger()
	w := &fakeWriter{}
	j := New(w, 16, logger)
	run(t, j)
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	// Given a message, a snapshot and a presence change are observed
	j.Observe(model.Notification{
		Type:           model.EventMessageAppended,
		ConversationID: "team",
		Data:           model.MessageAppended{Message: model.Message{Text: "hi"}},
		At:             at,
	})
	j.Observe(model.Notification{Type: model.EventHistorySnapshot, ConversationID: "team"})
	j.Observe(model.Notification{
		Type: model.EventPresenceChanged,
		Data: model.PresenceChange{UserID: "alice", Status: model.PresenceAway},
		At:   at,
	})

	// Then only the shared ones reach the topic, keyed for ordering
	req.Eventually(func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
	req.Equal(int64(2), j.Written())

	w.mu.Lock()
	defer w.mu.Unlock()
	req.Equal("team", string(w.messages[0].Key))
	req.Equal("alice", string(w.messages[1].Key))
	req.True(w.messages[0].Time.Equal(at))

	record, err := Decode(w.messages[0])
	req.NoError(err)
	req.Equal(model.EventMessageAppended, record.Type)
	req.Equal("team", record.ConversationID)
	var appended model.MessageAppended
	req.NoError(json.Unmarshal(record.Data, &appended))
	req.Equal("hi", appended.Message.Text)
}

func TestJournal_DropsWhenQueueFull(t *testing.T) {
	logger, _ := test.NewNullLogger()
	j := New(&fakeWriter{}, 1, logger)

	j.Observe(model.Notification{Type: model.EventTypingStarted})
	j.Observe(model.Notification{Type: model.EventTypingStopped})
	require.Equal(t, int64(1), j.Dropped())
}

func TestJournal_WriteErrorKeepsRunning(t *testing.T) {
	req := require.New(t)
	logger, hook := test.NewNullLogger()
	w := &fakeWriter{fail: errors.New("broker unavailable")}
	j := New(w, 4, logger)
	run(t, j)

	j.Observe(model.Notification{Type: model.EventTypingStarted, ConversationID: "team"})
	req.Eventually(func() bool { return hook.LastEntry() != nil }, time.Second, 5*time.Millisecond)
	req.Equal("Failed to write to journal", hook.LastEntry().Message)

	// When the broker recovers later writes go through
	w.mu.Lock()
	w.fail = nil
	w.mu.Unlock()
	j.Observe(model.Notification{Type: model.EventTypingStopped, ConversationID: "team"})
	req.Eventually(func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode(kafka.Message{Value: []byte("{"), Offset: 7})
	require.Error(t, err)
}
