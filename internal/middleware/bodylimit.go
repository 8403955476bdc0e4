package middleware

import (
	"net/http"

	"github.com/openclaw/ussd-gateway-go/internal/httputil"
)

// Gateway requests are a few hundred bytes of form fields.
const DefaultMaxBodySize = 64 << 10

// BodyLimitMiddleware rejects oversized bodies before they are parsed.
type BodyLimitMiddleware struct {
	maxSize int64
	reject  func(w http.ResponseWriter)
}

type BodyLimitOption func(*BodyLimitMiddleware)

// WithProtocolReject answers oversized requests with a plain-text protocol
// line instead of a JSON error, so that a USSD gateway can still show it.
func WithProtocolReject(line string) BodyLimitOption {
	return func(m *BodyLimitMiddleware) {
		m.reject = func(w http.ResponseWriter) {
			httputil.WriteText(w, http.StatusRequestEntityTooLarge, line)
		}
	}
}

func NewBodyLimitMiddleware(maxSize int64, opts ...BodyLimitOption) *BodyLimitMiddleware {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	m := &BodyLimitMiddleware{
		maxSize: maxSize,
		reject: func(w http.ResponseWriter) {
			httputil.WriteJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "Request body too large",
			})
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *BodyLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil && r.ContentLength > m.maxSize {
			m.reject(w)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, m.maxSize)
		next.ServeHTTP(w, r)
	})
}
