package audit

import (
	"sort"
	"strings"
	"time"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

const replayResponseExcerpt = 100

// Step is one request of a replayed session.
type Step struct {
	Step             int                 `json:"step"`
	Kind             model.AuditKind     `json:"kind"`
	Menu             string              `json:"menu"`
	Input            string              `json:"input"`
	Response         string              `json:"response"`
	APICalls         []model.CallSummary `json:"apiCalls,omitempty"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
	At               time.Time           `json:"at"`
}

// SessionReplay is the reconstructed path of a session through its menus.
type SessionReplay struct {
	SessionID string `json:"sessionId"`
	Steps     []Step `json:"steps"`
	Flow      string `json:"flow"`
}

// Replay orders entries by time and builds the step list and flow diagram.
func Replay(sessionID string, entries []model.AuditEntry) SessionReplay {
	sorted := make([]model.AuditEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	steps := make([]Step, 0, len(sorted))
	nodes := make([]string, 0, len(sorted))
	for i, e := range sorted {
		menu := ""
		if e.MenuCode != nil {
			menu = *e.MenuCode
		}
		steps = append(steps, Step{
			Step:             i + 1,
			Kind:             e.Kind,
			Menu:             menu,
			Input:            e.UserInput,
			Response:         excerpt(e.ResponseText, replayResponseExcerpt),
			APICalls:         e.APICalls,
			ProcessingTimeMs: e.ProcessingTimeMs,
			At:               e.CreatedAt,
		})

		node := menu
		if node == "" {
			node = "(" + string(e.Kind) + ")"
		}
		if e.UserInput != "" {
			node += " [" + e.UserInput + "]"
		}
		nodes = append(nodes, node)
	}

	return SessionReplay{
		SessionID: sessionID,
		Steps:     steps,
		Flow:      strings.Join(nodes, " → "),
	}
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
