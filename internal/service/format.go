package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/openclaw/ussd-gateway-go/internal/validation"
)

const (
	ResponseContinue = "CON"
	ResponseEnd      = "END"

	GenericErrorResponse       = "CON An error occurred. Please try again.\n\n0. Back to main menu"
	TimeoutResponse            = "END Session timed out. Please dial again to continue."
	SystemErrorResponse        = "END System error. Please try again later."
	ServiceUnavailableResponse = "END Service not available"
	InvalidRequestResponse     = "END Invalid request parameters"
	RateLimitedResponse        = "END Too many requests. Please try again shortly."
)

var optionLine = regexp.MustCompile(`^(\d+)\.\s+(.+)$`)

// FormatResponse builds the protocol line, dropping repeated option lines.
func FormatResponse(end bool, text string) string {
	kind := ResponseContinue
	if end {
		kind = ResponseEnd
	}

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	seen := make(map[string]struct{})
	for _, line := range lines {
		if m := optionLine.FindStringSubmatch(line); m != nil {
			key := m[1] + "-" + strings.TrimSpace(m[2])
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		kept = append(kept, line)
	}

	return fmt.Sprintf("%s %s", kind, strings.TrimSpace(strings.Join(kept, "\n")))
}

// InputTokens splits accumulated gateway text into sanitised inputs.
func InputTokens(text string) []string {
	var tokens []string
	for _, part := range strings.Split(text, "*") {
		if part = validation.Sanitize(part); part != "" {
			tokens = append(tokens, part)
		}
	}
	return tokens
}

// LastInput returns the newest input in text, or "".
func LastInput(text string) string {
	tokens := InputTokens(text)
	if len(tokens) == 0 {
		return ""
	}
	return tokens[len(tokens)-1]
}
