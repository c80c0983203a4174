// Package observability holds the process logger and the SQLite-backed
// records kept next to the application data: session lifecycle events and
// HTTP request logs, both with retention cleanup.
//
// Writes are best effort. A failing insert is logged through slog and never
// reaches the caller.
package observability

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/canvas/idgen"
	"github.com/hazyhaar/canvas/kit"
)

// ParseLevel maps "debug", "warn" and "error" to their slog level.
// Anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a JSON logger writing to w at the given level.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// Session event types.
const (
	EventCreated    = "session.created"
	EventRenamed    = "session.renamed"
	EventSaved      = "session.saved"
	EventReset      = "session.reset"
	EventTerminated = "session.terminated"
)

// SessionEvent is one lifecycle record.
type SessionEvent struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	Details   string `json:"details,omitempty"` // optional JSON
	Success   bool   `json:"success"`
	CreatedAt int64  `json:"createdAt"`
}

// EventLogger writes session events and request logs.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithLogger sets the slog logger used to report failed writes.
func WithLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger backed by db, which must have Schema
// applied.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.NanoID(16)),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogEvent records a session event. A nil EventLogger is a no-op.
func (l *EventLogger) LogEvent(ctx context.Context, ev SessionEvent) {
	if l == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.CreatedAt == 0 {
		ev.CreatedAt = time.Now().UnixMilli()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO session_events (event_id, event_type, session_id, user_id, details, success, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		ev.ID, ev.Type, ev.SessionID, ev.UserID, ev.Details, ev.Success, ev.CreatedAt)
	if err != nil {
		l.logger.Error("observability: event log failed", "error", err, "event_type", ev.Type, "session_id", ev.SessionID)
	}
}

// Events returns the events of sessionID, newest first.
func (l *EventLogger) Events(ctx context.Context, sessionID string, limit int) ([]SessionEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT event_id, event_type, session_id, COALESCE(user_id, ''), COALESCE(details, ''), success, created_at
		FROM session_events WHERE session_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("observability: events: %w", err)
	}
	defer rows.Close()

	var out []SessionEvent
	for rows.Next() {
		var ev SessionEvent
		if err := rows.Scan(&ev.ID, &ev.Type, &ev.SessionID, &ev.UserID, &ev.Details, &ev.Success, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("observability: scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// HTTPMiddleware records one http_request_logs row per request.
func (l *EventLogger) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		_, err := l.db.ExecContext(context.WithoutCancel(r.Context()), `
			INSERT INTO http_request_logs (method, path, status_code, duration_ms, user_id, ip_address, user_agent, created_at)
			VALUES (?,?,?,?,?,?,?,?)`,
			r.Method, r.URL.Path, rec.status, time.Since(start).Milliseconds(),
			kit.GetUserID(r.Context()), r.RemoteAddr, r.UserAgent(), time.Now().UnixMilli())
		if err != nil {
			l.logger.Warn("observability: request log failed", "error", err, "path", r.URL.Path)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack hands the connection to the websocket upgrader.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// RetentionConfig specifies per-table retention in days. Zero means no cleanup.
type RetentionConfig struct {
	HTTPLogsDays   int  `yaml:"http_logs_days"`
	EventLogsDays  int  `yaml:"event_logs_days"`
	RunVacuumAfter bool `yaml:"vacuum"`
}

// Cleanup deletes records exceeding the retention thresholds.
func Cleanup(ctx context.Context, db *sql.DB, cfg RetentionConfig) error {
	now := time.Now().UnixMilli()

	targets := []struct {
		query string
		days  int
	}{
		{"DELETE FROM http_request_logs WHERE created_at < ?", cfg.HTTPLogsDays},
		{"DELETE FROM session_events WHERE created_at < ?", cfg.EventLogsDays},
	}
	for _, t := range targets {
		if t.days <= 0 {
			continue
		}
		cutoff := now - int64(t.days)*86_400_000
		if _, err := db.ExecContext(ctx, t.query, cutoff); err != nil {
			return fmt.Errorf("observability: cleanup: %w", err)
		}
	}

	if cfg.RunVacuumAfter {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("observability: vacuum: %w", err)
		}
	}
	return nil
}
