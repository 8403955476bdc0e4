package handler

import (
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/ussd-gateway-go/internal/errors"
	"github.com/openclaw/ussd-gateway-go/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

// writeError answers with the error's mapped status. Errors that are not
// AppErrors are hidden from the caller. Those and storage failures are
// logged with the request id.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !apperrors.IsAppError(err) || apperrors.GetCode(err) == apperrors.ErrCodeDatabase {
		log.Error().Err(err).
			Str("requestId", chimiddleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("admin request failed")
	}
	httputil.WriteError(w, err)
}
