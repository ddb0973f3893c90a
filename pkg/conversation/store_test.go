package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewStore(node)
}

func TestDirectID_Sorted(t *testing.T) {
	req := require.New(t)

	req.Equal("dm:alice:bob", DirectID("bob", "alice"))
	req.Equal(DirectID("alice", "bob"), DirectID("bob", "alice"))

	a, b, ok := ParseDirect("dm:alice:bob")
	req.True(ok)
	req.Equal("alice", a)
	req.Equal("bob", b)

	_, _, ok = ParseDirect("dm:alice")
	req.False(ok)
	_, _, ok = ParseDirect("group:work")
	req.False(ok)
}

func TestAppend_RejectsEmptyText(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	_, _, err := s.Append("group:work", "u1", "hello")
	req.NoError(err)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, _, err := s.Append("group:work", "u1", text)
		req.ErrorIs(err, apperr.ErrEmptyMessage)
	}

	// Log length is unchanged
	history, err := s.History("group:work")
	req.NoError(err)
	req.Len(history, 1)
}

func TestAppend_AssignsIdentityAndSentStatus(t *testing.T) {
	req := require.New(t)
	node, err := snowflake.NewNode(1)
	req.NoError(err)
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(node, WithClock(func() time.Time { return at }))

	msg, members, err := s.Append("group:work", "u1", "hi")
	req.NoError(err)
	req.NotZero(msg.ID)
	req.Equal("group:work", msg.ConversationID)
	req.Equal("u1", msg.SenderID)
	req.Equal(model.StatusSent, msg.Status)
	req.Equal(at, msg.CreatedAt)
	req.Equal([]string{"u1"}, members)
}

func TestHistory_ReturnsAppendsInOrder(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	const n = 25
	for i := 0; i < n; i++ {
		_, _, err := s.Append("group:work", "u1", fmt.Sprintf("msg %d", i))
		req.NoError(err)
	}

	history, err := s.History("group:work")
	req.NoError(err)
	req.Len(history, n)
	for i, msg := range history {
		req.Equal(fmt.Sprintf("msg %d", i), msg.Text)
		if i > 0 {
			req.Greater(msg.ID, history[i-1].ID)
		}
	}
}

func TestHistory_IsSnapshot(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	msg, _, err := s.Append("group:work", "u1", "hi")
	req.NoError(err)
	history, err := s.History("group:work")
	req.NoError(err)

	// Mutating the copy does not touch the log
	history[0].Status = model.StatusRead
	stored, ok := s.FindByID("group:work", msg.ID)
	req.True(ok)
	req.Equal(model.StatusSent, stored.Status)

	// But later status updates are visible to later queries
	_, changed, err := s.Update("group:work", msg.ID, func(m *model.Message) bool {
		m.Status = model.StatusDelivered
		return true
	})
	req.NoError(err)
	req.True(changed)
	history, err = s.History("group:work")
	req.NoError(err)
	req.Equal(model.StatusDelivered, history[0].Status)
}

func TestHistory_UnknownConversationIsCreatedEmpty(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	history, err := s.History("group:new")
	req.NoError(err)
	req.Empty(history)
	req.Len(s.Groups(), 1)

	_, err = s.History("  ")
	req.ErrorIs(err, apperr.ErrUnknownConversation)
}

func TestDirect_OnlyParticipants(t *testing.T) {
	req := require.New(t)
	s := newStore(t)
	id := DirectID("alice", "bob")

	_, members, err := s.Append(id, "alice", "hey bob")
	req.NoError(err)
	req.ElementsMatch([]string{"alice", "bob"}, members)

	// An outsider can neither post nor join
	_, _, err = s.Append(id, "mallory", "hi")
	req.ErrorIs(err, apperr.ErrNotMember)
	_, err = s.Join(id, "mallory")
	req.ErrorIs(err, apperr.ErrNotMember)

	conv, err := s.Join(id, "bob")
	req.NoError(err)
	req.Equal(model.KindDirect, conv.Kind)
	req.Zero(conv.MemberCount)

	_, err = s.Ensure("dm:alice")
	req.ErrorIs(err, apperr.ErrUnknownConversation)
}

func TestGroup_JoinAndMembers(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	_, err := s.Members("group:work")
	req.ErrorIs(err, apperr.ErrUnknownConversation)

	for _, u := range []string{"a", "b", "c", "a"} {
		_, err := s.Join("group:work", u)
		req.NoError(err)
	}

	members, err := s.Members("group:work")
	req.NoError(err)
	req.Equal([]string{"a", "b", "c"}, members)
	req.True(s.IsMember("group:work", "b"))
	req.False(s.IsMember("group:work", "d"))

	conv, err := s.Ensure("group:work")
	req.NoError(err)
	req.Equal(3, conv.MemberCount)
	req.Len(s.ConversationsOf("a"), 1)
	req.Empty(s.ConversationsOf("d"))
}

func TestUpdate_UnknownTargets(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	_, _, err := s.Update("group:none", 1, func(*model.Message) bool { return true })
	req.ErrorIs(err, apperr.ErrUnknownConversation)

	_, err = s.Ensure("group:work")
	req.NoError(err)
	_, _, err = s.Update("group:work", 1, func(*model.Message) bool { return true })
	req.ErrorIs(err, apperr.ErrUnknownMessage)

	_, ok := s.FindByID("group:work", 1)
	req.False(ok)
}

func TestAppend_Concurrent(t *testing.T) {
	req := require.New(t)
	s := newStore(t)

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _, err := s.Append("group:busy", fmt.Sprintf("u%d", g), "x")
				req.NoError(err)
			}
		}(g)
	}
	wg.Wait()

	history, err := s.History("group:busy")
	req.NoError(err)
	req.Len(history, 500)
	members, err := s.Members("group:busy")
	req.NoError(err)
	req.Len(members, 10)
}
