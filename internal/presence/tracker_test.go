package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestMarkOnline(t *testing.T) {
	tr := NewTracker(WithClock(fixedClock(time.Unix(100, 0))))

	tr.MarkOnline("alice", "c1", "general")
	e, ok := tr.Lookup("alice")
	require.True(t, ok)
	assert.True(t, e.Online)
	assert.Equal(t, "general", e.Room)
	assert.Equal(t, "c1", e.ConnID)
	assert.Equal(t, time.Unix(101, 0).UTC(), e.LastSeen)

	// A later join from another connection in another room wins.
	tr.MarkOnline("alice", "c2", "random")
	e, _ = tr.Lookup("alice")
	assert.Equal(t, "random", e.Room)
	assert.Equal(t, "c2", e.ConnID)
	assert.Empty(t, tr.ListOnline("general"))
	assert.Equal(t, []string{"alice"}, tr.ListOnline("random"))
}

func TestMarkOffline(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*Tracker)
		connID     string
		wantResult bool
		wantOnline bool
	}{
		{
			name:       "current connection",
			setup:      func(tr *Tracker) { tr.MarkOnline("alice", "c1", "general") },
			connID:     "c1",
			wantResult: true,
			wantOnline: false,
		},
		{
			name: "stale connection after newer join",
			setup: func(tr *Tracker) {
				tr.MarkOnline("alice", "c1", "general")
				tr.MarkOnline("alice", "c2", "general")
			},
			connID:     "c1",
			wantResult: false,
			wantOnline: true,
		},
		{
			name: "duplicate disconnect",
			setup: func(tr *Tracker) {
				tr.MarkOnline("alice", "c1", "general")
				tr.MarkOffline("alice", "c1")
			},
			connID:     "c1",
			wantResult: false,
			wantOnline: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker()
			tt.setup(tr)

			assert.Equal(t, tt.wantResult, tr.MarkOffline("alice", tt.connID))
			e, ok := tr.Lookup("alice")
			require.True(t, ok)
			assert.Equal(t, tt.wantOnline, e.Online)
		})
	}
}

func TestMarkOfflineUnknownUser(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.MarkOffline("ghost", "c1"))
	_, ok := tr.Lookup("ghost")
	assert.False(t, ok)
}

func TestListOnline(t *testing.T) {
	tr := NewTracker()
	assert.Empty(t, tr.ListOnline("nowhere"))

	tr.MarkOnline("bob", "c2", "general")
	tr.MarkOnline("carol", "c3", "random")
	tr.MarkOnline("alice", "c1", "general")
	tr.MarkOffline("carol", "c3")
	tr.MarkOnline("dave", "c4", "random")
	tr.MarkOffline("bob", "c2")
	tr.MarkOnline("bob", "c5", "general")

	assert.Equal(t, []string{"alice", "bob"}, tr.ListOnline("general"))
	assert.Equal(t, []string{"dave"}, tr.ListOnline("random"))
	assert.Equal(t, 3, tr.OnlineCount())
}
