package audit

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/openclaw/ussd-gateway-go/internal/config"
)

// Mask replaces sensitive values in history and audit records.
const Mask = "****"

var (
	fourDigits       = regexp.MustCompile(`^\d{4}$`)
	fourDigitsInText = regexp.MustCompile(`\b\d{4}\b`)
	pinLike          = regexp.MustCompile(`^\d{4,}$`)
)

// Masker applies the masking rules for inputs and responses.
type Masker struct {
	pinMenus map[string]struct{}
	position int
}

// NewMasker builds a masker. Four-digit tokens at composite-input index
// position or later are masked.
func NewMasker(pinMenus []string, position int) *Masker {
	set := make(map[string]struct{}, len(pinMenus))
	for _, code := range pinMenus {
		if code = strings.TrimSpace(code); code != "" {
			set[code] = struct{}{}
		}
	}
	return &Masker{pinMenus: set, position: position}
}

func (m *Masker) IsPinMenu(menuCode string) bool {
	_, ok := m.pinMenus[menuCode]
	return ok
}

// MaskInput masks input submitted while menuCode was current. Input with
// no menu masks every token that could be a PIN.
func (m *Masker) MaskInput(menuCode, input string) string {
	if input == "" {
		return input
	}
	if menuCode == "" {
		return maskPinLike(input)
	}
	if m.IsPinMenu(menuCode) {
		return Mask
	}
	return m.MaskComposite(input)
}

func maskPinLike(input string) string {
	parts := strings.Split(input, "*")
	for i, part := range parts {
		if pinLike.MatchString(part) {
			parts[i] = Mask
		}
	}
	return strings.Join(parts, "*")
}

// MaskComposite masks four-digit tokens of a "*"-delimited input.
func (m *Masker) MaskComposite(input string) string {
	if !strings.Contains(input, "*") {
		return input
	}
	parts := strings.Split(input, "*")
	for i, part := range parts {
		if i >= m.position && fourDigits.MatchString(part) {
			parts[i] = Mask
		}
	}
	return strings.Join(parts, "*")
}

// MaskResponse masks four-digit numbers and truncates to the audit excerpt length.
func MaskResponse(text string) string {
	masked := fourDigitsInText.ReplaceAllString(text, Mask)
	if utf8.RuneCountInString(masked) <= config.AuditResponseMaxLength {
		return masked
	}
	return string([]rune(masked)[:config.AuditResponseMaxLength])
}
