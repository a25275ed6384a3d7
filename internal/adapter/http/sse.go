package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/clipforge/renderd/internal/domain"
)

// handleEvents streams progress frames for one job as server-sent events.
// The channel is at-least-once; a consumer that misses frames re-syncs
// from the snapshot sent on connect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, err := s.orch.Status(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Current state first, so late subscribers start from truth.
	sseWrite(w, "progress", snapshotEvent(job))
	if job.Terminal() {
		return
	}

	ch := s.bus.Subscribe(id)
	defer s.bus.Unsubscribe(id, ch)

	ctx := r.Context()
	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			sendKeepAlive(w)
		case event, ok := <-ch:
			if !ok {
				return
			}
			sseWrite(w, "progress", event)
			if event.Percentage >= 100 {
				return
			}
			// Failed jobs stop short of 100; confirm against the record.
			current, err := s.orch.Status(ctx, id)
			if err == nil && current.Terminal() {
				sseWrite(w, "progress", snapshotEvent(current))
				return
			}
		}
	}
}

func snapshotEvent(job *domain.VideoJob) domain.ProgressEvent {
	message := "in progress"
	switch job.Status {
	case domain.JobStatusPending:
		message = "queued"
	case domain.JobStatusCompleted:
		message = "job completed"
	case domain.JobStatusFailed:
		message = fmt.Sprintf("job failed: %s", job.ErrorKind)
	}
	return domain.ProgressEvent{
		JobID:      job.ID,
		Stage:      job.Stage,
		Percentage: job.Progress,
		Message:    message,
		Timestamp:  job.UpdatedAt,
	}
}

// sseWrite encodes one event frame and flushes it immediately.
func sseWrite(w http.ResponseWriter, eventName string, event domain.ProgressEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName, payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// sendKeepAlive writes an SSE comment to keep the connection active.
func sendKeepAlive(w http.ResponseWriter) {
	_, _ = fmt.Fprint(w, ": keep-alive\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}
