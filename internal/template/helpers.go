package template

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
}

func defaultHelpers() map[string]Helper {
	return map[string]Helper{
		"currency":   currencyHelper("$"),
		"date":       formatDate,
		"uppercase":  strings.ToUpper,
		"lowercase":  strings.ToLower,
		"capitalize": capitalize,
	}
}

func currencyHelper(symbol string) Helper {
	return func(value string) string {
		amount, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(value), ",", ""), 64)
		if err != nil {
			return value
		}
		sign := ""
		if amount < 0 {
			sign = "-"
			amount = -amount
		}
		return sign + symbol + groupThousands(strconv.FormatFloat(amount, 'f', 2, 64))
	}
}

// groupThousands inserts commas into the integer part of a formatted number.
func groupThousands(num string) string {
	intPart, frac := num, ""
	if i := strings.IndexByte(num, '.'); i >= 0 {
		intPart, frac = num[:i], num[i:]
	}
	if len(intPart) <= 3 {
		return num
	}

	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	return b.String() + frac
}

func formatDate(value string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return t.Format("Jan 2, 2006")
		}
	}
	return value
}

func capitalize(value string) string {
	r, size := utf8.DecodeRuneInString(value)
	if r == utf8.RuneError {
		return value
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(value[size:])
}
