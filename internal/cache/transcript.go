// Package cache holds the local read-through caches: a SQLite transcript
// cache so a failed history fetch can still render the last known state of a
// room, and a Redis snapshot cache for the analytics dashboards.
package cache

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fishook/fishook/internal/chat"
)

// TranscriptStore persists merged transcripts per room. It implements
// chat.TranscriptCache. Rows for a room are replaced wholesale on every
// successful history fetch so the cache only ever feeds the history input of
// the merge, never a second live stream.
type TranscriptStore struct {
	db *sql.DB
}

func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// ReplaceRoom swaps the cached transcript of a room for the given messages.
func (s *TranscriptStore) ReplaceRoom(ctx context.Context, roomID string, msgs []chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM transcript_messages WHERE room_id = @room_id`,
		sql.Named("room_id", roomID)); err != nil {
		return fmt.Errorf("ExecContext(delete transcript): %w", err)
	}

	for _, m := range msgs {
		if err := upsertTx(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

// Append upserts one live message into the room's cached transcript.
func (s *TranscriptStore) Append(ctx context.Context, msg chat.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("BeginTx: %w", err)
	}
	defer tx.Rollback()

	if err := upsertTx(ctx, tx, msg); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Commit: %w", err)
	}
	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, m chat.Message) error {
	query := `
		INSERT INTO transcript_messages (id, room_id, sender, body, sent_at, read_flag)
		VALUES (@id, @room_id, @sender, @body, @sent_at, @read_flag)
		ON CONFLICT (room_id, id) DO UPDATE SET
			body = excluded.body,
			read_flag = transcript_messages.read_flag OR excluded.read_flag`
	_, err := tx.ExecContext(ctx, query,
		sql.Named("id", m.ID),
		sql.Named("room_id", m.RoomID),
		sql.Named("sender", string(m.Sender)),
		sql.Named("body", m.Body),
		sql.Named("sent_at", m.SentAt),
		sql.Named("read_flag", m.Read),
	)
	if err != nil {
		return fmt.Errorf("ExecContext(upsert transcript message): %w", err)
	}
	return nil
}

// RoomMessages returns the cached transcript of a room ordered by timestamp.
// A nil slice is returned when nothing is cached.
func (s *TranscriptStore) RoomMessages(ctx context.Context, roomID string) ([]chat.Message, error) {
	query := `
		SELECT id, room_id, sender, body, sent_at, read_flag
		FROM transcript_messages
		WHERE room_id = @room_id
		ORDER BY sent_at ASC`
	rows, err := s.db.QueryContext(ctx, query, sql.Named("room_id", roomID))
	if err != nil {
		return nil, fmt.Errorf("QueryContext(transcript messages): %w", err)
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var sender string
		if err := rows.Scan(&m.ID, &m.RoomID, &sender, &m.Body, &m.SentAt, &m.Read); err != nil {
			return nil, fmt.Errorf("Scan(transcript message): %w", err)
		}
		m.Sender = chat.Sender(sender)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return msgs, nil
}
