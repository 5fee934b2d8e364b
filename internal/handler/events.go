package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/quizblitz/live-server/internal/config"
	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/hub"
	"github.com/quizblitz/live-server/internal/registry"
)

// EventsHandler streams a room's broadcasts as server-sent events. It backs
// the projector view, which only watches.
type EventsHandler struct {
	hub      *hub.Hub
	sessions *registry.Registry
}

func NewEventsHandler(h *hub.Hub, sessions *registry.Registry) *EventsHandler {
	return &EventsHandler{
		hub:      h,
		sessions: sessions,
	}
}

// GET /v1/sessions/{code}/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	session, ok := h.sessions.Lookup(code)
	if !ok {
		writeError(w, apperrors.NotFound("Session"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperrors.Internal("Streaming not supported"))
		return
	}

	summary, err := session.Summary(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.hub.Watch(code)
	defer h.hub.Disconnect(client)

	log.Info().
		Str("code", code).
		Str("handle", client.Handle).
		Int("roomClients", h.hub.ClientCount(code)).
		Msg("spectator connected")

	if err := h.sendEvent(w, flusher, "connected", summary); err != nil {
		return
	}

	ctx := r.Context()
	heartbeat := time.NewTicker(config.SSEHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("code", code).Msg("spectator disconnected")
			return

		case <-client.Done:
			return

		case env := <-client.Events:
			if err := h.sendRawEvent(w, flusher, env); err != nil {
				log.Debug().Err(err).Str("code", code).Msg("failed to send spectator event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, event string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return h.sendRawEvent(w, flusher, hub.Envelope{Event: event, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, env hub.Envelope) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", env.Event); err != nil {
		return err
	}
	data := env.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
