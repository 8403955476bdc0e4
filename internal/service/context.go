package service

import (
	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// Context keys set from the caller identity.
const (
	ContextPhoneNumber = "phone_number"
	ContextSessionID   = "session_id"
)

// buildContext merges, in increasing precedence, the session data blob,
// the session variables and the caller identity into a new map.
func buildContext(sess *model.Session, vars map[string]string) map[string]any {
	varLayer := make(map[string]any, len(vars))
	for k, v := range vars {
		varLayer[k] = v
	}
	return mergeContext(
		sess.Data,
		varLayer,
		map[string]any{
			ContextPhoneNumber: sess.PhoneNumber,
			ContextSessionID:   sess.SessionID,
		},
	)
}

// mergeContext returns a new map holding every layer; later layers win.
func mergeContext(layers ...map[string]any) map[string]any {
	size := 0
	for _, l := range layers {
		size += len(l)
	}
	out := make(map[string]any, size)
	for _, l := range layers {
		for k, v := range l {
			out[k] = v
		}
	}
	return out
}
