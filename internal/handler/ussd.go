package handler

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/audit"
	"github.com/openclaw/ussd-gateway-go/internal/httputil"
	"github.com/openclaw/ussd-gateway-go/internal/service"
)

// USSDService is the part of service.USSDService the handler needs.
type USSDService interface {
	Handle(ctx context.Context, req service.USSDRequest) service.USSDResponse
	HandleCallback(ctx context.Context, sessionID, status string) (bool, error)
}

type USSDHandler struct {
	ussdService USSDService
}

func NewUSSDHandler(ussdService USSDService) *USSDHandler {
	return &USSDHandler{ussdService: ussdService}
}

// Handle answers a gateway request with a plain-text CON/END line.
// Gateways post either form fields or JSON with the same names.
func (h *USSDHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var req service.USSDRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("invalid ussd request body")
			req = service.USSDRequest{}
		}
	} else if err := r.ParseForm(); err == nil {
		req = service.USSDRequest{
			SessionID:   r.PostForm.Get("sessionId"),
			ServiceCode: r.PostForm.Get("serviceCode"),
			PhoneNumber: r.PostForm.Get("phoneNumber"),
			Text:        r.PostForm.Get("text"),
		}
	}
	req.IPAddress = audit.ClientIP(r)
	req.UserAgent = r.UserAgent()

	resp := h.ussdService.Handle(r.Context(), req)
	httputil.WriteText(w, resp.StatusCode, resp.Body)
}

type callbackRequest struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// Callback receives session status notifications. It always acknowledges
// so that the gateway does not redeliver.
func (h *USSDHandler) Callback(w http.ResponseWriter, r *http.Request) {
	var req callbackRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			log.Warn().Err(err).Msg("invalid ussd callback body")
		}
	} else if err := r.ParseForm(); err == nil {
		req.SessionID = r.PostForm.Get("sessionId")
		req.Status = r.PostForm.Get("status")
	}

	ended, err := h.ussdService.HandleCallback(r.Context(), req.SessionID, req.Status)
	if err != nil {
		log.Error().Err(err).Str("sessionId", req.SessionID).Msg("failed to handle ussd callback")
	}

	log.Info().
		Str("sessionId", req.SessionID).
		Str("status", req.Status).
		Bool("ended", ended).
		Msg("ussd callback received")

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
