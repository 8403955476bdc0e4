package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/openclaw/ussd-gateway-go/internal/config"
	"github.com/openclaw/ussd-gateway-go/internal/model"
)

// FormatErrors renders one error as-is and several as a numbered list.
func FormatErrors(errs []string) string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return errs[0]
	}
	lines := make([]string, len(errs))
	for i, e := range errs {
		lines[i] = fmt.Sprintf("%d. %s", i+1, e)
	}
	return "Please fix the following:\n" + strings.Join(lines, "\n")
}

// Hint summarises the rules a user can act on, e.g. "numbers only, max 4 characters".
func Hint(rules model.RuleSet) string {
	byName := make(map[string]model.Rule, len(rules))
	for _, r := range rules {
		byName[canonical(r.Name)] = r
	}

	var hints []string
	if _, ok := byName["numeric"]; ok {
		hints = append(hints, "numbers only")
	}
	if r, ok := byName["minLength"]; ok {
		hints = append(hints, fmt.Sprintf("min %s characters", paramString(r.Param)))
	}
	if r, ok := byName["maxLength"]; ok {
		hints = append(hints, fmt.Sprintf("max %s characters", paramString(r.Param)))
	}
	if _, ok := byName["phone"]; ok {
		hints = append(hints, "valid phone number")
	}
	if _, ok := byName["email"]; ok {
		hints = append(hints, "valid email")
	}
	if _, ok := byName["amount"]; ok {
		hints = append(hints, "valid amount")
	}
	return strings.Join(hints, ", ")
}

// Prompt appends the hint to the menu text when there is one.
func Prompt(text, hint string) string {
	if hint == "" {
		return text
	}
	return text + "\n(" + hint + ")"
}

// Sanitize trims input, strips control characters and caps its length.
func Sanitize(input string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if len(cleaned) > config.MaxInputLength {
		runes := []rune(cleaned)
		if len(runes) > config.MaxInputLength {
			cleaned = string(runes[:config.MaxInputLength])
		}
	}
	return cleaned
}
