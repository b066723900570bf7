// Package stream writes link-check events to a client as they happen.
package stream

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/munnerz/goautoneg"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
)

// Media types understood by EncoderFor.
const (
	ContentTypeSSE    = "text/event-stream"
	ContentTypeNDJSON = "application/x-ndjson"
)

// Encoder frames one event per write.
type Encoder interface {
	ContentType() string
	Encode(w io.Writer, evt linkcheck.Event) error
}

// SSEEncoder writes Server-Sent Events: "data: <json>\n\n".
type SSEEncoder struct{}

// ContentType implements Encoder.
func (SSEEncoder) ContentType() string { return ContentTypeSSE }

// Encode implements Encoder.
func (SSEEncoder) Encode(w io.Writer, evt linkcheck.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode sse frame: %w", err)
	}
	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write sse frame: %w", err)
	}
	return nil
}

// NDJSONEncoder writes one JSON object per line.
type NDJSONEncoder struct{}

// ContentType implements Encoder.
func (NDJSONEncoder) ContentType() string { return ContentTypeNDJSON }

// Encode implements Encoder.
func (NDJSONEncoder) Encode(w io.Writer, evt linkcheck.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode ndjson line: %w", err)
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write ndjson line: %w", err)
	}
	return nil
}

// EncoderFor picks the framing for an Accept header. SSE wins ties and is
// the fallback.
func EncoderFor(accept string) Encoder {
	if accept == "" {
		return SSEEncoder{}
	}
	if goautoneg.Negotiate(accept, []string{ContentTypeSSE, ContentTypeNDJSON}) == ContentTypeNDJSON {
		return NDJSONEncoder{}
	}
	return SSEEncoder{}
}
