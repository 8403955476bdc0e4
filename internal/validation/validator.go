// Package validation checks user input against a menu's configured rules.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/ussd-gateway-go/internal/model"
)

var (
	digitsOnly  = regexp.MustCompile(`^\d+$`)
	decimalNum  = regexp.MustCompile(`^\d+(\.\d+)?$`)
	phoneChars  = regexp.MustCompile(`^[\d\s\-+()]+$`)
	nonDigit    = regexp.MustCompile(`\D`)
	emailShape  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "2006/01/02", "01/02/2006", "02-01-2006"}
)

type predicate func(v *Validator, input string, param any) bool

var predicates = map[string]predicate{
	"required": func(_ *Validator, in string, _ any) bool {
		return strings.TrimSpace(in) != ""
	},
	"minLength": func(_ *Validator, in string, p any) bool {
		n, ok := toFloat(p)
		return ok && in != "" && float64(utf8.RuneCountInString(in)) >= n
	},
	"maxLength": func(_ *Validator, in string, p any) bool {
		n, ok := toFloat(p)
		return in == "" || (ok && float64(utf8.RuneCountInString(in)) <= n)
	},
	"numeric": func(_ *Validator, in string, _ any) bool {
		return digitsOnly.MatchString(in)
	},
	"decimal": func(_ *Validator, in string, _ any) bool {
		return decimalNum.MatchString(in)
	},
	"phone": func(_ *Validator, in string, _ any) bool {
		return phoneChars.MatchString(in) && len(nonDigit.ReplaceAllString(in, "")) >= 10
	},
	"email": func(_ *Validator, in string, _ any) bool {
		return emailShape.MatchString(in)
	},
	"amount": func(_ *Validator, in string, _ any) bool {
		n, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
		return err == nil && n > 0
	},
	"minAmount": func(_ *Validator, in string, p any) bool {
		n, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
		min, ok := toFloat(p)
		return err == nil && ok && n >= min
	},
	"maxAmount": func(_ *Validator, in string, p any) bool {
		n, err := strconv.ParseFloat(strings.TrimSpace(in), 64)
		max, ok := toFloat(p)
		return err == nil && ok && n <= max
	},
	"regex": func(v *Validator, in string, p any) bool {
		pattern, ok := p.(string)
		if !ok {
			return false
		}
		re, err := v.compile(pattern)
		if err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("invalid validation regex")
			return false
		}
		return re.MatchString(in)
	},
	"inList": func(_ *Validator, in string, p any) bool {
		list, ok := p.([]any)
		if !ok {
			return false
		}
		for _, item := range list {
			if s, ok := model.ScalarString(item); ok && s == in {
				return true
			}
		}
		return false
	},
	"date": func(_ *Validator, in string, _ any) bool {
		_, ok := parseDate(in)
		return ok
	},
	"futureDate": func(v *Validator, in string, _ any) bool {
		t, ok := parseDate(in)
		return ok && t.After(v.now())
	},
	"pastDate": func(v *Validator, in string, _ any) bool {
		t, ok := parseDate(in)
		return ok && t.Before(v.now())
	},
}

// snake_case spellings accepted for the camelCase rule names.
var aliases = map[string]string{
	"min_length":  "minLength",
	"max_length":  "maxLength",
	"min_amount":  "minAmount",
	"max_amount":  "maxAmount",
	"in_list":     "inList",
	"future_date": "futureDate",
	"past_date":   "pastDate",
}

type Validator struct {
	now      func() time.Time
	patterns sync.Map // pattern -> *regexp.Regexp
}

type Option func(*Validator)

// WithClock overrides the time source used by date rules.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := v.patterns.Load(pattern); ok {
		return re.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns.Store(pattern, re)
	return re, nil
}

// Validate returns every failing rule's message in configured order.
// Unknown rule names are skipped with a warning.
func (v *Validator) Validate(input string, rules model.RuleSet) []string {
	var errs []string
	for _, rule := range rules {
		name := canonical(rule.Name)
		check, ok := predicates[name]
		if !ok {
			log.Warn().Str("rule", rule.Name).Msg("unknown validation rule")
			continue
		}
		if check(v, input, rule.Param) {
			continue
		}
		msg := rule.Message
		if msg == "" {
			msg = DefaultMessage(name, rule.Param)
		}
		errs = append(errs, msg)
	}
	return errs
}

func canonical(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// DefaultMessage returns the stock error text for a rule.
func DefaultMessage(rule string, param any) string {
	p := paramString(param)
	switch canonical(rule) {
	case "required":
		return "This field is required"
	case "minLength":
		return fmt.Sprintf("Minimum length is %s characters", p)
	case "maxLength":
		return fmt.Sprintf("Maximum length is %s characters", p)
	case "numeric":
		return "Please enter numbers only"
	case "decimal":
		return "Please enter a valid decimal number"
	case "phone":
		return "Please enter a valid phone number"
	case "email":
		return "Please enter a valid email address"
	case "amount":
		return "Please enter a valid amount"
	case "minAmount":
		return fmt.Sprintf("Minimum amount is %s", p)
	case "maxAmount":
		return fmt.Sprintf("Maximum amount is %s", p)
	case "regex":
		return "Invalid format"
	case "inList":
		return "Invalid selection"
	case "date":
		return "Please enter a valid date"
	case "futureDate":
		return "Please enter a future date"
	case "pastDate":
		return "Please enter a past date"
	}
	return "Invalid input"
}

func parseDate(in string) (time.Time, bool) {
	in = strings.TrimSpace(in)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, in); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

func paramString(v any) string {
	if s, ok := model.ScalarString(v); ok {
		return s
	}
	return ""
}
