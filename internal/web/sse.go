package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/warehouse/internal/importer"
)

// handleRunProgress streams run progress via Server-Sent Events.
//
// The event ID is the percentage, so a reconnecting client that sends
// Last-Event-ID (or ?lastEventId=) skips values it has already seen. The
// stream ends with a "complete" event carrying the final value.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	updates, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"), http.StatusInternalServerError)
		return
	}

	lastSent := lastEventID(r)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case u, open := <-updates:
			if !open {
				final, err := s.service.Progress(runID)
				if err != nil {
					final = importer.ProgressUpdate{RunID: runID, Percent: 100, Phase: importer.PhaseComplete}
				}
				writeEvent(w, "complete", final)
				flusher.Flush()
				return
			}
			if u.Percent <= lastSent {
				continue
			}
			lastSent = u.Percent
			writeEvent(w, "progress", u)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, u importer.ProgressUpdate) {
	data, _ := json.Marshal(u)
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", u.Percent, event, data)
}

// lastEventID returns the resume point, or -1 to send everything.
func lastEventID(r *http.Request) int {
	raw := r.Header.Get("Last-Event-ID")
	if raw == "" {
		raw = r.URL.Query().Get("lastEventId")
	}
	if raw == "" {
		return -1
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}
