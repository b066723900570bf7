package linkcheck

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DefaultMaxURLs caps the number of links accepted in one batch.
const DefaultMaxURLs = 200

// ErrBodyRequired is returned when the payload is empty or not a JSON object.
var ErrBodyRequired = errors.New("request body must be a JSON object")

// FieldError describes one invalid field in a request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field violation found in a request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, fe := range v {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes ErrBodyRequired for malformed bodies.
func (v ValidationErrors) Unwrap() error {
	if len(v) == 1 && v[0].Field == "body" {
		return ErrBodyRequired
	}
	return nil
}

// Validate parses a raw request payload. It returns either a Request or a
// ValidationErrors value, never both.
func Validate(body []byte, maxURLs int) (Request, error) {
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}
	var fields map[string]json.RawMessage
	if len(bytes.TrimSpace(body)) == 0 {
		return Request{}, ValidationErrors{{Field: "body", Message: ErrBodyRequired.Error()}}
	}
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return Request{}, ValidationErrors{{Field: "body", Message: ErrBodyRequired.Error()}}
	}

	var errs ValidationErrors
	urls, urlErrs := validateURLs(fields["urls"], maxURLs)
	errs = append(errs, urlErrs...)
	pageURL, pageErr := validatePageURL(fields["pageUrl"])
	if pageErr != nil {
		errs = append(errs, *pageErr)
	}
	if len(errs) > 0 {
		return Request{}, errs
	}
	return Request{URLs: urls, PageURL: pageURL}, nil
}

func validateURLs(raw json.RawMessage, maxURLs int) ([]string, ValidationErrors) {
	if isMissing(raw) {
		return nil, ValidationErrors{{Field: "urls", Message: "urls is required"}}
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, ValidationErrors{{Field: "urls", Message: "urls must be an array of strings"}}
	}

	var errs ValidationErrors
	switch {
	case len(items) == 0:
		errs = append(errs, FieldError{Field: "urls", Message: "urls must contain at least one URL"})
	case len(items) > maxURLs:
		errs = append(errs, FieldError{
			Field:   "urls",
			Message: fmt.Sprintf("urls contains %d entries; maximum is %d", len(items), maxURLs),
		})
	}

	out := make([]string, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("urls[%d]", i)
		s, ok := item.(string)
		if !ok {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("expected a string, got %v", item)})
			continue
		}
		if reason := checkHTTPURL(s); reason != "" {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("%q %s", s, reason)})
			continue
		}
		out = append(out, s)
	}
	return out, errs
}

func validatePageURL(raw json.RawMessage) (string, *FieldError) {
	if isMissing(raw) {
		return "", &FieldError{Field: "pageUrl", Message: "pageUrl is required"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &FieldError{Field: "pageUrl", Message: "pageUrl must be a string"}
	}
	if reason := checkHTTPURL(s); reason != "" {
		return "", &FieldError{Field: "pageUrl", Message: fmt.Sprintf("%q %s", s, reason)}
	}
	return s, nil
}

// checkHTTPURL returns an empty string for absolute http/https URLs and a short
// reason otherwise.
func checkHTTPURL(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "is empty"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "is not a valid URL"
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "must use http or https"
	}
	if u.Hostname() == "" {
		return "is missing a host"
	}
	return ""
}

func isMissing(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
