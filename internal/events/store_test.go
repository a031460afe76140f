package events

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAppendReadAndFilters(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nested", "events.jsonl"))

	base := time.Now().Add(-2 * time.Hour).UTC()
	seed := []Event{
		{Timestamp: base, TunnelID: "a", EventType: TypeStartRequested},
		{Timestamp: base.Add(10 * time.Minute), TunnelID: "a", EventType: TypeStartSucceeded, PID: 42},
		{Timestamp: base.Add(20 * time.Minute), TunnelID: "b", EventType: TypeStartFailed},
	}
	for _, evt := range seed {
		require.NoError(t, s.Append(evt))
	}

	all, err := s.Read(Query{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	onlyA, err := s.Read(Query{TunnelID: "a"})
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	failed, err := s.Read(Query{EventType: TypeStartFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].TunnelID)

	limited, err := s.Read(Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "b", limited[0].TunnelID)

	since, err := s.Read(Query{Since: base.Add(15 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, "b", since[0].TunnelID)
}

func TestStoreReadMissingFile(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "events.jsonl"))
	got, err := s.Read(Query{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("not json\n\n"), 0o600))
	s := NewStore(path)
	require.NoError(t, s.Append(Event{TunnelID: "a", EventType: TypeStopped}))

	got, err := s.Read(Query{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestNewDefaultStoreUsesConfigDir(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	s, err := NewDefaultStore()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "tunnelbar", "events.jsonl"), s.Path())
}
