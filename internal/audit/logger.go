package audit

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/util"
)

type EventType string

const (
	EventBlockCreated      EventType = "block_created"
	EventBlockLifted       EventType = "block_lifted"
	EventBlockedRequest    EventType = "blocked_request"
	EventFailedAttempt     EventType = "failed_attempt"
	EventRateLimitExceed   EventType = "rate_limit_exceeded"
	EventAdminAuthFailure  EventType = "admin_auth_failure"
	EventSessionTerminated EventType = "session_terminated"
)

// Event is a security-relevant occurrence written to the structured log,
// separate from the per-request audit trail.
type Event struct {
	Type      EventType
	Phone     string
	SessionID string
	IP        string
	UserAgent string
	Details   map[string]interface{}
}

func LogEvent(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "security").
		Str("eventType", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Phone != "" {
		logger = logger.With().Str("phone", util.MaskPhone(event.Phone)).Logger()
	}
	if event.SessionID != "" {
		logger = logger.With().Str("sessionId", event.SessionID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}
	if event.UserAgent != "" {
		logger = logger.With().Str("userAgent", event.UserAgent).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("security audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Time:
		return e.Time(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogEventFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	event.UserAgent = r.UserAgent()
	LogEvent(r.Context(), event)
}

// ClientIP returns the first forwarded address, falling back to RemoteAddr.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
