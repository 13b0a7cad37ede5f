package cache

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fishook/fishook/internal/chat"
)

type transcriptFixture struct {
	store *TranscriptStore
	db    *sql.DB
	ctx   context.Context
}

func newTranscriptFixture(t *testing.T) *transcriptFixture {
	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	migrationfs := os.DirFS("../../migrations")
	goose.SetBaseFS(migrationfs)
	require.NoError(t, goose.SetDialect("sqlite3"))
	require.NoError(t, goose.Up(db, "."))
	t.Cleanup(func() { goose.Reset(db, ".") })

	return &transcriptFixture{
		store: NewTranscriptStore(db),
		db:    db,
		ctx:   context.Background(),
	}
}

func cachedMsg(roomID, id string, ts int64) chat.Message {
	return chat.Message{
		ID:     id,
		RoomID: roomID,
		Sender: chat.SenderCustomer,
		Body:   "body-" + id,
		SentAt: time.Unix(ts, 0).UTC(),
	}
}

func TestTranscriptReplaceAndRead(t *testing.T) {
	f := newTranscriptFixture(t)

	msgs := []chat.Message{
		cachedMsg("X", "2", 20),
		cachedMsg("X", "1", 10),
	}
	require.NoError(t, f.store.ReplaceRoom(f.ctx, "X", msgs))

	got, err := f.store.RoomMessages(f.ctx, "X")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID, "cached transcript must come back in timestamp order")
	assert.Equal(t, "2", got[1].ID)
}

func TestTranscriptReplaceIsWholesale(t *testing.T) {
	f := newTranscriptFixture(t)

	require.NoError(t, f.store.ReplaceRoom(f.ctx, "X", []chat.Message{cachedMsg("X", "old", 10)}))
	require.NoError(t, f.store.ReplaceRoom(f.ctx, "X", []chat.Message{cachedMsg("X", "new", 20)}))

	got, err := f.store.RoomMessages(f.ctx, "X")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID, "a fresh fetch must replace the cached room wholesale")
}

func TestTranscriptAppendUpserts(t *testing.T) {
	f := newTranscriptFixture(t)

	m := cachedMsg("X", "1", 10)
	require.NoError(t, f.store.Append(f.ctx, m))
	// duplicate delivery of the same id must not create a second row
	require.NoError(t, f.store.Append(f.ctx, m))

	got, err := f.store.RoomMessages(f.ctx, "X")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestTranscriptReadFlagIsOneWay(t *testing.T) {
	f := newTranscriptFixture(t)

	m := cachedMsg("X", "1", 10)
	m.Read = true
	require.NoError(t, f.store.Append(f.ctx, m))

	// a later unread copy must not clear the read flag
	m.Read = false
	require.NoError(t, f.store.Append(f.ctx, m))

	got, err := f.store.RoomMessages(f.ctx, "X")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Read, "read flag transitions are one-way")
}

func TestTranscriptRoomsAreIsolated(t *testing.T) {
	f := newTranscriptFixture(t)

	require.NoError(t, f.store.Append(f.ctx, cachedMsg("X", "1", 10)))
	require.NoError(t, f.store.Append(f.ctx, cachedMsg("Y", "1", 10)))

	got, err := f.store.RoomMessages(f.ctx, "X")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "X", got[0].RoomID)

	require.NoError(t, f.store.ReplaceRoom(f.ctx, "X", nil))
	got, err = f.store.RoomMessages(f.ctx, "Y")
	require.NoError(t, err)
	assert.Len(t, got, 1, "clearing room X must not touch room Y")
}

func TestTranscriptEmptyRoom(t *testing.T) {
	f := newTranscriptFixture(t)

	got, err := f.store.RoomMessages(f.ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}
