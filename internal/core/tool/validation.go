package tool

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// Validation Errors
// =============================================================================

// ValidationError describes one invalid input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects field errors for a single input.
type ValidationErrors []ValidationError

// Add appends a field error.
func (v *ValidationErrors) Add(field, format string, args ...any) {
	*v = append(*v, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns v as an error, or nil when empty.
func (v ValidationErrors) Err() error {
	if len(v) == 0 {
		return nil
	}
	return &v
}

func (v *ValidationErrors) Error() string {
	parts := make([]string, len(*v))
	for i, e := range *v {
		parts[i] = e.Error()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// =============================================================================
// Decoding
// =============================================================================

// Input is implemented by every tool input model.
type Input interface {
	Validate() error
}

// Decode unmarshals raw into T, applies defaults and validates it.
func Decode[T any, P interface {
	*T
	Input
}](raw json.RawMessage) (*T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return nil, &ValidationErrors{{Field: "tool_input", Message: decodeMessage(err)}}
	}
	if d, ok := any(P(&v)).(interface{ ApplyDefaults() }); ok {
		d.ApplyDefaults()
	}
	if err := P(&v).Validate(); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %s must be %s", typeErr.Field, typeErr.Type)
	}
	return fmt.Sprintf("invalid JSON: %v", err)
}

// fieldsPresent reports which of keys exist at the top level of raw.
func fieldsPresent(raw json.RawMessage, keys ...string) (map[string]bool, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ValidationErrors{{Field: "tool_input", Message: "must be a JSON object"}}
	}
	present := make(map[string]bool, len(keys))
	for _, k := range keys {
		if v, ok := m[k]; ok && string(v) != "null" {
			present[k] = true
		}
	}
	return present, nil
}

// =============================================================================
// Shared Rules
// =============================================================================

var (
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nonDigit      = regexp.MustCompile(`[^\d]`)
	datePattern   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	regionPattern = regexp.MustCompile(`^[A-Z]{2}$`)
)

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeContact validates a phone number or email address.
// Emails are lower-cased; phone numbers are returned trimmed but otherwise as given.
func NormalizeContact(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("cannot be empty")
	}
	if strings.Contains(s, "@") {
		if !IsEmail(s) {
			return "", errors.New("invalid email format")
		}
		return strings.ToLower(s), nil
	}
	digits := nonDigit.ReplaceAllString(s, "")
	if digits == "" {
		return "", errors.New("must be a valid phone number or email")
	}
	if len(digits) < 7 {
		return "", errors.New("phone number must have at least 7 digits")
	}
	return s, nil
}

// NormalizeRegion upper-cases and checks an ISO-3166 alpha-2 code.
func NormalizeRegion(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !regionPattern.MatchString(s) {
		return "", errors.New("must be a 2-letter ISO country code")
	}
	return s, nil
}

func checkHTTPSURLs(errs *ValidationErrors, field string, urls []string, maxItems, maxLen int) {
	if len(urls) > maxItems {
		errs.Add(field, "at most %d items allowed", maxItems)
	}
	for i, u := range urls {
		if !strings.HasPrefix(u, "https://") {
			errs.Add(fmt.Sprintf("%s[%d]", field, i), "must start with https://")
		}
		if utf8.RuneCountInString(u) > maxLen {
			errs.Add(fmt.Sprintf("%s[%d]", field, i), "exceeds %d characters", maxLen)
		}
	}
}

func checkMaxLen(errs *ValidationErrors, field, value string, max int) {
	if utf8.RuneCountInString(value) > max {
		errs.Add(field, "exceeds %d characters", max)
	}
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
