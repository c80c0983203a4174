package shield

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// MaintenanceMode answers 503 while the maintenance flag is on. The flag
// lives in the maintenance table (see Schema) so the CLI can flip it for a
// running server; the middleware reads an in-memory copy refreshed by Run.
type MaintenanceMode struct {
	db      *sql.DB
	active  atomic.Bool
	message atomic.Value // string
	exclude []string
}

// NewMaintenanceMode loads the flag once. Paths under excludePrefixes
// (health checks) are never blocked. A missing table means off.
func NewMaintenanceMode(db *sql.DB, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{db: db, exclude: excludePrefixes}
	m.message.Store("Canvas is being updated, please retry shortly.")
	m.reload(context.Background())
	return m
}

// Active reports whether maintenance mode is on.
func (m *MaintenanceMode) Active() bool { return m.active.Load() }

// Message returns the message shown to blocked clients.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// Set stores the flag and applies it immediately. An empty msg keeps the
// current message.
func (m *MaintenanceMode) Set(ctx context.Context, active bool, msg string) error {
	if err := SetMaintenance(ctx, m.db, active, msg); err != nil {
		return err
	}
	m.reload(ctx)
	return nil
}

// SetMaintenance writes the flag without a running MaintenanceMode, for
// the CLI. Servers pick it up on their next reload.
func SetMaintenance(ctx context.Context, db *sql.DB, active bool, msg string) error {
	flag := 0
	if active {
		flag = 1
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO maintenance (id, active, message) VALUES (1, ?, COALESCE(NULLIF(?, ''), 'Canvas is being updated, please retry shortly.'))
		ON CONFLICT(id) DO UPDATE SET active = excluded.active,
			message = CASE WHEN ? = '' THEN maintenance.message ELSE excluded.message END`,
		flag, msg, msg)
	if err != nil {
		return fmt.Errorf("shield: set maintenance: %w", err)
	}
	return nil
}

// Run reloads the flag every interval until ctx is done.
func (m *MaintenanceMode) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			m.reload(ctx)
		}
	}
}

func (m *MaintenanceMode) reload(ctx context.Context) {
	var active int
	var message string
	err := m.db.QueryRowContext(ctx, `SELECT active, message FROM maintenance WHERE id = 1`).Scan(&active, &message)
	if err != nil {
		if m.active.Load() {
			slog.Info("maintenance: flag cleared", "error", err)
		}
		m.active.Store(false)
		return
	}

	was := m.active.Load()
	m.active.Store(active == 1)
	if message != "" {
		m.message.Store(message)
	}
	switch {
	case active == 1 && !was:
		slog.Warn("maintenance: enabled", "message", message)
	case active != 1 && was:
		slog.Info("maintenance: disabled")
	}
}

// Middleware blocks requests while maintenance is on. API paths get a JSON
// error, everything else a small HTML page.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Retry-After", "300")
		if isAPI(r.URL.Path) {
			writeJSONError(w, http.StatusServiceUnavailable, m.Message())
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintf(w, maintenancePage, html.EscapeString(m.Message()))
	})
}

const maintenancePage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Maintenance</title>
<style>
  body { font-family: system-ui, sans-serif; display: flex; align-items: center;
         justify-content: center; min-height: 100vh; margin: 0; background: #f8f9fa; color: #333; }
  .box { text-align: center; max-width: 480px; padding: 2rem; }
  p { color: #666; }
</style>
</head>
<body>
<div class="box">
  <h1>Maintenance</h1>
  <p>%s</p>
</div>
</body>
</html>`
