// Package validator accepts or rejects shopper supplied gift messages and
// produces their normalized form.
package validator

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxLength is the maximum gift message length in code points
const DefaultMaxLength = 150

// Rule is a custom policy check run after the built-in checks passed.
// A non-nil error rejects the message; its text is shown to the shopper.
type Rule interface {
	Validate(text string) error
}

// RuleFunc adapts a plain function to the Rule interface
type RuleFunc func(text string) error

func (f RuleFunc) Validate(text string) error { return f(text) }

// unsafePatterns is the server side rule table. The client script in
// presenter/assets carries its own copy and must be kept in step.
var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`),
	regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe\s*>`),
	regexp.MustCompile(`(?is)<object\b[^>]*>.*?</object\s*>`),
	regexp.MustCompile(`(?is)<embed\b[^>]*>.*?</embed\s*>`),
	regexp.MustCompile(`(?i)<\s*(script|iframe|object|embed)\b`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
}

// Validator checks gift messages. It is safe for concurrent use.
type Validator struct {
	maxLength int
	rules     []Rule
	policy    *bluemonday.Policy
}

// New creates a validator. maxLength <= 0 selects DefaultMaxLength.
func New(maxLength int, rules ...Rule) *Validator {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Validator{
		maxLength: maxLength,
		rules:     append([]Rule(nil), rules...),
		policy:    bluemonday.StrictPolicy(),
	}
}

// MaxLength returns the configured limit in code points
func (v *Validator) MaxLength() int {
	return v.maxLength
}

// Validate returns the normalized message. Empty or whitespace-only input is
// not an error: it yields "" which callers treat as "no gift message".
func (v *Validator) Validate(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", nil
	}

	// Length is measured on what the shopper typed, before markup stripping.
	if n := utf8.RuneCountInString(text); n > v.maxLength {
		return "", &ValidationError{
			Code:    CodeTooLong,
			Message: fmt.Sprintf("Gift message is too long (%d characters). Maximum is %d characters.", n, v.maxLength),
		}
	}

	if ContainsUnsafeContent(text) {
		return "", errUnsafeContent()
	}

	for _, rule := range v.rules {
		if err := rule.Validate(text); err != nil {
			return "", &ValidationError{Code: CodeCustomRuleRejected, Message: err.Error()}
		}
	}

	// Decoding entities can turn escaped markup into live markup.
	normalized := v.normalize(text)
	if ContainsUnsafeContent(normalized) {
		return "", errUnsafeContent()
	}
	return normalized, nil
}

func errUnsafeContent() *ValidationError {
	return &ValidationError{
		Code:    CodeUnsafeContent,
		Message: "Gift message contains invalid content. Please remove any HTML or script tags.",
	}
}

// normalize strips any remaining markup while keeping the plain characters
// the shopper typed (entities are decoded back).
func (v *Validator) normalize(text string) string {
	stripped := html.UnescapeString(v.policy.Sanitize(text))
	return strings.TrimSpace(stripped)
}

// ContainsUnsafeContent reports whether text matches any entry of the rule table.
func ContainsUnsafeContent(text string) bool {
	for _, pattern := range unsafePatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
