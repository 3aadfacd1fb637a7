package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Session kinds recorded in the usage ledger.
const (
	KindTTS  = "tts"
	KindASR  = "asr"
	KindLive = "live"
)

// SpeechSession is one recorded API interaction (a synthesis call, a
// transcription, or a live streaming session).
type SpeechSession struct {
	ID           string    `json:"id,omitempty"`
	Kind         string    `json:"kind"`
	ReferenceID  *string   `json:"reference_id,omitempty"` // Voice model used, if any
	TextBytes    int       `json:"text_bytes"`             // UTF-8 bytes of text synthesized
	AudioBytes   int       `json:"audio_bytes"`            // Audio bytes produced or consumed
	DurationMs   int       `json:"duration_ms"`            // Wall-clock duration of the interaction
	CostCents    int       `json:"cost_cents"`
	FinishReason *string   `json:"finish_reason,omitempty"` // Live sessions only
	CreatedAt    time.Time `json:"created_at"`
}

// UsageStats aggregates the ledger since a point in time.
type UsageStats struct {
	Sessions       int `json:"sessions"`
	TextBytes      int `json:"text_bytes"`
	AudioBytes     int `json:"audio_bytes"`
	TotalCostCents int `json:"total_cost_cents"`
}

// InsertSession records one speech session and returns its generated ID.
func (s *Store) InsertSession(ctx context.Context, sess SpeechSession) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO speech_sessions (kind, reference_id, text_bytes, audio_bytes, duration_ms, cost_cents, finish_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, sess.Kind, sess.ReferenceID, sess.TextBytes, sess.AudioBytes, sess.DurationMs, sess.CostCents, sess.FinishReason).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]SpeechSession, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, kind, reference_id, text_bytes, audio_bytes, duration_ms, cost_cents, finish_reason, created_at
		FROM speech_sessions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SpeechSession
	for rows.Next() {
		var sess SpeechSession
		if err := rows.Scan(&sess.ID, &sess.Kind, &sess.ReferenceID, &sess.TextBytes,
			&sess.AudioBytes, &sess.DurationMs, &sess.CostCents, &sess.FinishReason, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetUsageStats aggregates the ledger since the given time.
func (s *Store) GetUsageStats(ctx context.Context, since time.Time) (*UsageStats, error) {
	var stats UsageStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(text_bytes), 0),
		       COALESCE(SUM(audio_bytes), 0),
		       COALESCE(SUM(cost_cents), 0)
		FROM speech_sessions
		WHERE created_at >= $1
	`, since).Scan(&stats.Sessions, &stats.TextBytes, &stats.AudioBytes, &stats.TotalCostCents)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	return &stats, nil
}

// ListSessionEvents returns the logged events for one session, oldest first.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]SessionEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	rows, err := s.db.Query(ctx, `
		SELECT event_type, event_data, created_at
		FROM session_events
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list session events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var ev SessionEvent
		if err := rows.Scan(&ev.Type, &ev.Data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// SessionEvent is one logged event for a session.
type SessionEvent struct {
	Type      string    `json:"type"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
