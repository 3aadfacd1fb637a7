package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of speech session event
type EventType string

const (
	EventSessionStarted EventType = "session_started"
	EventTTSCompleted   EventType = "tts_completed"
	EventTTSError       EventType = "tts_error"
	EventASRCompleted   EventType = "asr_completed"
	EventASRError       EventType = "asr_error"
	EventLiveConnected  EventType = "live_connected"
	EventLiveServerLog  EventType = "live_server_log"
	EventLiveFinished   EventType = "live_finished"
	EventLiveError      EventType = "live_error"
	EventModelCreated   EventType = "model_created"
	EventModelDeleted   EventType = "model_deleted"
	EventSessionEnded   EventType = "session_ended"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO session_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
