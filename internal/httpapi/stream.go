package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/celloweb-ai/MOC-Studio-BR/internal/notify"
)

const (
	maxReplay         = 32
	heartbeatInterval = 25 * time.Second
)

// Stream pushes dashboard notifications as Server-Sent Events. ?replay=N
// first sends the last N notifications.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming_unsupported", "streaming unsupported")
		return
	}
	replay, err := parseBoundedInt("replay", r.URL.Query().Get("replay"), 0, 0, maxReplay)
	if err != nil {
		badRequest(w, r, err)
		return
	}

	// Streams outlive the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	ch := a.svc.Events.Subscribe(ctx)

	_, _ = w.Write([]byte(": stream started\n\n"))
	if replay > 0 {
		for _, n := range a.svc.Events.Recent(replay) {
			writeEvent(w, n)
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case n, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, n)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, n notify.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
}
