package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/linkcheck/internal/linkcheck"
	"github.com/JakeFAU/linkcheck/internal/stream"
)

// checkLinks validates the batch, then streams one event per link followed by
// a completion event. Failures after the first byte are reported in-band.
func (s *Server) checkLinks(w http.ResponseWriter, r *http.Request) {
	logger := s.logger.With(zap.String("request_id", requestIDFromContext(r.Context())))

	reader := io.Reader(r.Body)
	if limit := s.cfg.Checker.MaxBodyBytes; limit > 0 {
		reader = http.MaxBytesReader(w, r.Body, limit)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "could not read request body")
		return
	}

	req, err := linkcheck.Validate(body, s.cfg.Checker.MaxURLs)
	if err != nil {
		var verrs linkcheck.ValidationErrors
		if errors.As(err, &verrs) {
			logger.Debug("rejected link check request", zap.Error(err))
			writeJSON(w, http.StatusBadRequest, errorBody{
				Type:    string(linkcheck.EventError),
				Message: "invalid request",
				Errors:  verrs,
			})
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	enc := stream.EncoderFor(r.Header.Get("Accept"))
	header := w.Header()
	header.Set("Content-Type", enc.ContentType())
	header.Set("Cache-Control", "no-cache")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	emitter := stream.NewEmitter(w, enc, logger.Named("stream"))
	defer emitter.Close()

	events := make(chan linkcheck.Event, max(s.cfg.Checker.Concurrency, 0))
	go s.runner.Run(r.Context(), req, events)

	if err := emitter.Drain(events); err != nil {
		logger.Info("stream ended early", zap.Int("sent", emitter.Sent()), zap.Error(err))
		return
	}
	logger.Debug("stream finished", zap.Int("sent", emitter.Sent()), zap.Int("links", len(req.URLs)))
}
