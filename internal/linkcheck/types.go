// Package linkcheck validates batches of links and streams per-link results.
package linkcheck

import (
	"encoding/json"
	"fmt"
)

// Status classifies the health of a single link.
type Status string

// Supported link statuses.
const (
	StatusOK       Status = "ok"
	StatusBroken   Status = "broken"
	StatusRedirect Status = "redirect"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusInsecure Status = "insecure"
	StatusWarning  Status = "warning"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusOK, StatusBroken, StatusRedirect, StatusTimeout, StatusError, StatusInsecure, StatusWarning:
		return true
	default:
		return false
	}
}

// Transient reports whether the status is worth retrying.
func (s Status) Transient() bool {
	return s == StatusError || s == StatusTimeout
}

// Request is a validated batch submitted by a caller.
type Request struct {
	URLs    []string
	PageURL string
}

// Target pairs the caller-supplied URL with the URL actually probed.
type Target struct {
	Original string
	Probe    string
}

// Result is the outcome of checking one link. Construct it through the variant
// helpers below so optional fields only appear where they make sense.
type Result struct {
	URL        string `json:"url"`
	Status     Status `json:"status"`
	StatusCode int    `json:"statusCode,omitempty"`
	FinalURL   string `json:"finalUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

// OK reports a reachable link.
func OK(url string, code int) Result {
	return Result{URL: url, Status: StatusOK, StatusCode: code}
}

// OKWithNote reports a link treated as reachable despite a diagnostic, such as
// a certificate the probing client does not trust.
func OKWithNote(url, note string) Result {
	return Result{URL: url, Status: StatusOK, Error: note}
}

// Redirected reports a link whose final location differs from the request.
func Redirected(url, finalURL string, code int) Result {
	return Result{URL: url, Status: StatusRedirect, StatusCode: code, FinalURL: finalURL}
}

// Broken reports a 4xx/5xx response.
func Broken(url string, code int) Result {
	return Result{
		URL:        url,
		Status:     StatusBroken,
		StatusCode: code,
		Error:      fmt.Sprintf("HTTP %d", code),
	}
}

// Warning reports an ambiguous response that needs manual review.
func Warning(url string, code int, msg string) Result {
	return Result{URL: url, Status: StatusWarning, StatusCode: code, Error: msg}
}

// Failed reports a transport failure.
func Failed(url, msg string) Result {
	return Result{URL: url, Status: StatusError, Error: msg}
}

// TimedOut reports a probe that exceeded its deadline.
func TimedOut(url, msg string) Result {
	return Result{URL: url, Status: StatusTimeout, Error: msg}
}

// Insecure reports an http link referenced from an https page.
func Insecure(url string) Result {
	return Result{URL: url, Status: StatusInsecure, Error: "insecure HTTP link on an HTTPS page"}
}

// withURL rewrites the reported URL, keeping every other field.
func (r Result) withURL(url string) Result {
	r.URL = url
	return r
}

// Summary describes how a run ended.
type Summary struct {
	Total        int  `json:"total"`
	Checked      int  `json:"checked"`
	TimedOut     bool `json:"timedOut"`
	Disconnected bool `json:"-"`
}

// EventType tags the variants carried by Event.
type EventType string

// Stream event variants.
const (
	EventResult   EventType = "result"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is the single message type flowing from a run to its stream.
type Event struct {
	Type    EventType
	Result  Result
	Summary Summary
	Message string
}

// ResultEvent wraps a per-link result.
func ResultEvent(r Result) Event {
	return Event{Type: EventResult, Result: r}
}

// CompleteEvent wraps the terminal summary.
func CompleteEvent(s Summary) Event {
	return Event{Type: EventComplete, Summary: s}
}

// ErrorEvent wraps a run-level failure.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

type completeFrame struct {
	Type string `json:"type"`
	Summary
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// MarshalJSON renders the wire shape of each variant.
func (e Event) MarshalJSON() ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch e.Type {
	case EventResult:
		if !e.Result.Status.Valid() {
			return nil, fmt.Errorf("unknown link status %q", e.Result.Status)
		}
		data, err = json.Marshal(e.Result)
	case EventComplete:
		data, err = json.Marshal(completeFrame{Type: string(EventComplete), Summary: e.Summary})
	case EventError:
		data, err = json.Marshal(errorFrame{Type: string(EventError), Message: e.Message})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return data, nil
}
