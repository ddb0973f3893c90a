package identity

import (
	"testing"
	"time"

	"github.com/mahaj/chatrelay/pkg/apperr"
	"github.com/mahaj/chatrelay/pkg/model"
	"github.com/stretchr/testify/require"
)

func TestDeclare_RejectsBlankName(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Declare("c1", "   ", "🐱")
	req.ErrorIs(err, apperr.ErrInvalidIdentity)

	// No state was created
	_, ok := r.Profile("c1")
	req.False(ok)
}

func TestDeclare_CreatesOnlineUser(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	user, err := r.Declare("c1", "  Alice ", "")
	req.NoError(err)
	req.Equal("c1", user.ID)
	req.Equal("Alice", user.DisplayName)
	req.Equal(DefaultAvatar, user.Avatar)
	req.Equal(model.PresenceOnline, user.Presence)

	got, ok := r.Lookup("c1")
	req.True(ok)
	req.Equal(user, got)
}

func TestDeclare_OverwritesProfile(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Declare("c1", "Alice", "🐱")
	req.NoError(err)
	_, err = r.Declare("c1", "Alicia", "🦊")
	req.NoError(err)

	got, ok := r.Lookup("c1")
	req.True(ok)
	req.Equal("Alicia", got.DisplayName)
	req.Equal("🦊", got.Avatar)
	req.Len(r.Known(), 1)
}

func TestRemove_RetainsProfile(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, err := r.Declare("c1", "Alice", "🐱")
	req.NoError(err)
	_, err = r.Declare("c2", "Bob", "🐶")
	req.NoError(err)

	// When c1 disconnects
	removed, ok := r.Remove("c1")
	req.True(ok)
	req.Equal("Alice", removed.DisplayName)

	// Then it is no longer live but still known
	_, ok = r.Lookup("c1")
	req.False(ok)
	req.False(r.IsLive("c1"))
	profile, ok := r.Profile("c1")
	req.True(ok)
	req.Equal("Alice", profile.DisplayName)

	req.Len(r.Live(), 1)
	req.Equal("c2", r.Live()[0].ID)
	req.Len(r.Known(), 2)

	// Removing twice is a no-op
	_, ok = r.Remove("c1")
	req.False(ok)
}

func TestSetPresence(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	_, err := r.Declare("c1", "Alice", "🐱")
	req.NoError(err)

	seen := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	r.SetPresence("c1", model.PresenceState{Status: model.PresenceAway, LastSeen: &seen})

	got, _ := r.Profile("c1")
	req.Equal(model.PresenceAway, got.Presence)
	req.Equal(&seen, got.LastSeen)
}
