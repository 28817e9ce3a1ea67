// AngelaMos | 2026
// events.go

package auth

import (
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"
)

const (
	EventUserLoggedIn          = "user.logged-in"
	EventEstudianteLoggedIn    = "estudiante.logged-in"
	EventEstudiantePrimerLogin = "estudiante.primer-login"
)

// EventSink receives domain events. Implementations are fire-and-forget:
// they must neither block nor fail the login call, so Emit returns nothing
// and swallows transport errors.
type EventSink interface {
	Emit(name string, payload any)
}

// NATSSink publishes events as JSON onto <prefix>.<event-name>.
type NATSSink struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSSink(conn *nats.Conn, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix}
}

func (s *NATSSink) Emit(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("event payload marshal failed", "event", name, "error", err)
		return
	}

	subject := s.prefix + "." + name
	if err := s.conn.Publish(subject, data); err != nil {
		slog.Warn("event publish failed", "event", name, "error", err)
	}
}

// LogSink is the fallback when no broker is configured (local dev, tests).
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(name string, payload any) {
	s.logger.Info("domain event", "event", name, "payload", payload)
}
