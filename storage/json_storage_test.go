package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"openvote-backend/board"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	l := board.NewLog()
	l.Append(board.KindRegistration, []byte(`{"voter_id":"v1"}`))
	l.Append(board.KindBallot, []byte(`{"voter_id":"v1"}`))

	require.NoError(t, store.SaveLog("registrations", l.Entries()))

	loaded, err := store.LoadLog("registrations")
	require.NoError(t, err)
	require.Equal(t, l.Entries(), loaded)
	require.NoError(t, board.Validate(loaded))
}

func TestLoadMissingLog(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	entries, err := store.LoadLog("ballots")
	require.NoError(t, err)
	require.Nil(t, entries)
}

func TestLoadCorruptLog(t *testing.T) {
	dir := t.TempDir()
	store, err := NewJSONStore(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tally_log.json"), []byte("not json"), 0644))
	_, err = store.LoadLog("tally")
	require.Error(t, err)
}

func TestSaveOverwrites(t *testing.T) {
	store, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)

	l := board.NewLog()
	l.Append(board.KindRegistration, []byte("a"))
	require.NoError(t, store.SaveLog("registrations", l.Entries()))

	l.Append(board.KindRegistration, []byte("b"))
	require.NoError(t, store.SaveLog("registrations", l.Entries()))

	loaded, err := store.LoadLog("registrations")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
}
