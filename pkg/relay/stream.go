// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package relay

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// eventStream writes "data: <json>\n\n" frames to the client. Once a write
// fails or end is called, every later write is a no-op reporting false.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	logger  zerolog.Logger
	closed  bool
}

func (s *eventStream) open() {
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

func (s *eventStream) writeFrame(payload []byte) bool {
	if s.closed {
		return false
	}
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, '\n', '\n')
	if _, err := s.w.Write(frame); err != nil {
		s.logger.Debug().Err(err).Msg("downstream write failed")
		s.closed = true
		return false
	}
	s.flusher.Flush()
	return true
}

func (s *eventStream) writeJSON(v any) bool {
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal downstream frame failed")
		return !s.closed
	}
	return s.writeFrame(payload)
}

func (s *eventStream) end() {
	s.closed = true
}
