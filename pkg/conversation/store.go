// Package conversation owns the message logs.
//
// Each conversation has its own lock; the store lock only guards the map of
// conversations. Direct conversations use the id form dm:<a>:<b> with the two
// user ids sorted, every other id names a group.
package conversation

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/mahaj/chatrelay/pkg/snowflake"
	"github.com/samber/lo"
)

const directPrefix = "dm:"

// DirectID returns the id of the direct conversation between a and b.
func DirectID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("%s%s:%s", directPrefix, a, b)
}

// ParseDirect splits a direct conversation id into its participants.
func ParseDirect(id string) (string, string, bool) {
	if !strings.HasPrefix(id, directPrefix) {
		return "", "", false
	}
	parts := strings.Split(id, ":")
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

type conversation struct {
	mu       sync.Mutex
	id       string
	kind     model.ConversationKind
	members  []string
	messages []model.Message
	index    map[snowflake.ID]int
}

func (c *conversation) isMember(userID string) bool {
	return lo.Contains(c.members, userID)
}

func (c *conversation) snapshot() model.Conversation {
	conv := model.Conversation{
		ID:      c.id,
		Kind:    c.kind,
		Members: append([]string(nil), c.members...),
	}
	if c.kind == model.KindGroup {
		conv.MemberCount = len(c.members)
	}
	return conv
}

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	ids           *snowflake.Node
	now           func() time.Time
}

type Option func(*Store)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(ids *snowflake.Node, opts ...Option) *Store {
	s := &Store{
		conversations: make(map[string]*conversation),
		ids:           ids,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// conversation returns the conversation of id, creating it on first reference.
func (s *Store) conversation(id string) (*conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.ErrUnknownConversation
	}

	s.mu.RLock()
	c, ok := s.conversations[id]
	s.mu.RUnlock()
	if ok {
		return c, nil
	}

	c = &conversation{id: id, kind: model.KindGroup, index: make(map[snowflake.ID]int)}
	if a, b, ok := ParseDirect(id); ok {
		c.kind = model.KindDirect
		c.members = []string{a, b}
	} else if strings.HasPrefix(id, directPrefix) {
		return nil, fmt.Errorf("malformed direct id %q: %w", id, apperr.ErrUnknownConversation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[id]; ok {
		return existing, nil
	}
	s.conversations[id] = c
	return c, nil
}

func (s *Store) existing(id string) (*conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Ensure creates the conversation if absent and returns its snapshot.
func (s *Store) Ensure(id string) (model.Conversation, error) {
	c, err := s.conversation(id)
	if err != nil {
		return model.Conversation{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

// Join adds userID to a group. For direct conversations it only checks that
// userID is one of the two participants.
func (s *Store) Join(id, userID string) (model.Conversation, error) {
	c, err := s.conversation(id)
	if err != nil {
		return model.Conversation{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.join(userID); err != nil {
		return model.Conversation{}, err
	}
	return c.snapshot(), nil
}

func (c *conversation) join(userID string) error {
	if c.isMember(userID) {
		return nil
	}
	if c.kind == model.KindDirect {
		return fmt.Errorf("%s in %s: %w", userID, c.id, apperr.ErrNotMember)
	}
	c.members = append(c.members, userID)
	return nil
}

func (s *Store) IsMember(id, userID string) bool {
	c, ok := s.existing(id)
	if !ok {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isMember(userID)
}

func (s *Store) Members(id string) ([]string, error) {
	c, ok := s.existing(id)
	if !ok {
		return nil, apperr.ErrUnknownConversation
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.members...), nil
}

// Append adds a message to the log, joining the sender to the conversation
// when it is a group. It returns the stored message and the members at the
// time of the append.
func (s *Store) Append(id, senderID, text string) (model.Message, []string, error) {
	if strings.TrimSpace(text) == "" {
		return model.Message{}, nil, apperr.ErrEmptyMessage
	}

	c, err := s.conversation(id)
	if err != nil {
		return model.Message{}, nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.join(senderID); err != nil {
		return model.Message{}, nil, err
	}

	msg := model.Message{
		ID:             s.ids.Generate(),
		ConversationID: c.id,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      s.now().UTC(),
		Status:         model.StatusSent,
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg)

	return msg, append([]string(nil), c.members...), nil
}

// History returns a copy of the log in send order.
func (s *Store) History(id string) ([]model.Message, error) {
	c, err := s.conversation(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message{}, c.messages...), nil
}

func (s *Store) FindByID(id string, messageID snowflake.ID) (model.Message, bool) {
	c, ok := s.existing(id)
	if !ok {
		return model.Message{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[messageID]
	if !ok {
		return model.Message{}, false
	}
	return c.messages[i], true
}

// Update runs fn on the stored message under the conversation lock. fn
// reports whether it changed the message. Only the status may be changed.
func (s *Store) Update(id string, messageID snowflake.ID, fn func(*model.Message) bool) (model.Message, bool, error) {
	c, ok := s.existing(id)
	if !ok {
		return model.Message{}, false, apperr.ErrUnknownConversation
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[messageID]
	if !ok {
		return model.Message{}, false, apperr.ErrUnknownMessage
	}
	msg := c.messages[i]
	changed := fn(&msg)
	if changed {
		c.messages[i].Status = msg.Status
	}
	return c.messages[i], changed, nil
}

// Groups returns every group conversation ordered by id.
func (s *Store) Groups() []model.Conversation {
	return s.filter(func(c *conversation) bool { return c.kind == model.KindGroup })
}

// ConversationsOf returns the conversations userID is a member of.
func (s *Store) ConversationsOf(userID string) []model.Conversation {
	return s.filter(func(c *conversation) bool { return c.isMember(userID) })
}

func (s *Store) filter(keep func(*conversation) bool) []model.Conversation {
	s.mu.RLock()
	all := lo.Values(s.conversations)
	s.mu.RUnlock()

	out := make([]model.Conversation, 0, len(all))
	for _, c := range all {
		c.mu.Lock()
		if keep(c) {
			out = append(out, c.snapshot())
		}
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
