package middleware

import (
	"net/http"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/httputil"
	"github.com/openclaw/ussd-gateway-go/internal/util"
)

const AdminKeyHeader = "X-API-Key"

// AdminAuthMiddleware guards the operator endpoints with a bcrypt-hashed key.
// An empty hash disables the endpoints entirely.
type AdminAuthMiddleware struct {
	keyHash string
}

func NewAdminAuthMiddleware(keyHash string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{keyHash: keyHash}
}

func (m *AdminAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.keyHash == "" {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": "Admin API is disabled",
			})
			return
		}

		key := strings.TrimSpace(r.Header.Get(AdminKeyHeader))
		if key == "" {
			m.reject(w, r, "missing key")
			return
		}
		if !util.CheckPasswordHash(key, m.keyHash) {
			m.reject(w, r, "invalid key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (m *AdminAuthMiddleware) reject(w http.ResponseWriter, r *http.Request, reason string) {
	audit.LogEventFromRequest(r, audit.Event{
		Type: audit.EventAdminAuthFailure,
		Details: map[string]interface{}{
			"reason": reason,
			"path":   r.URL.Path,
		},
	})
	httputil.WriteError(w, apperrors.Unauthorized("Invalid API key"))
}
