package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bowerhall/partscout/internal/agent"
	"github.com/bowerhall/partscout/internal/logger"
)

// handleStream answers as Server-Sent Events, one JSON event per message:
//
//	data: {"type":"token","content":"..."}
//
// The stream ends after a done or error event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	req, ok := decodeRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(ev agent.Event) error {
		msg, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", msg); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.svc.HandleStream(r.Context(), req, emit); err != nil {
		logger.Debug("stream ended with error", "error", err)
	}
}
