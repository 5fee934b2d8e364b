package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/quizblitz/live-server/internal/config"
	"github.com/quizblitz/live-server/internal/hub"
	"github.com/quizblitz/live-server/internal/middleware"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/registry"
	"github.com/quizblitz/live-server/internal/repository"
	"github.com/quizblitz/live-server/internal/service"
)

type memoryContent struct {
	sets map[string]*model.ContentSet
}

func (m *memoryContent) FindByID(ctx context.Context, id string) (*model.ContentSet, error) {
	return m.sets[id], nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []model.HistoryRecord
}

func (m *memoryHistory) Create(ctx context.Context, record model.HistoryRecord) (*model.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return &record, nil
}

func (m *memoryHistory) ListByHost(ctx context.Context, hostID string, limit int) ([]model.HistoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.HistoryRecord{}
	for _, r := range m.records {
		if r.HostID == hostID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryHistory) WithTx(tx *sqlx.Tx) repository.HistoryRepository {
	return m
}

func testQuestions() []model.Question {
	return []model.Question{
		{ID: "q1", Prompt: "2+2?", Options: []string{"3", "4"}, CorrectIndex: 1},
		{ID: "q2", Prompt: "3+3?", Options: []string{"6", "7"}, CorrectIndex: 0},
	}
}

type fixture struct {
	hub     *hub.Hub
	reg     *registry.Registry
	history *memoryHistory
	srv     *httptest.Server
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{EventsPerSecond: 50}
	}

	f := &fixture{
		hub:     hub.New(nil),
		history: &memoryHistory{},
	}
	f.reg = registry.New(registry.Options{Out: f.hub, History: f.history, LobbyHostGrace: time.Minute})

	content := &memoryContent{sets: map[string]*model.ContentSet{
		"set-1": {ID: "set-1", OwnerID: "host-1", Title: "Sums", Questions: testQuestions()},
	}}
	hosting := service.NewHostingService(content, f.history, f.reg)

	sessions := NewSessionHandler(hosting, f.reg)
	events := NewEventsHandler(f.hub, f.reg)
	socket := NewSocketHandler(f.hub, f.reg, cfg)

	r := chi.NewRouter()
	r.With(middleware.HostIdentity).Post("/v1/sessions", sessions.Create)
	r.With(middleware.HostIdentity).Get("/v1/history", sessions.History)
	r.Get("/v1/sessions/{code}", sessions.Get)
	r.Get("/v1/sessions/{code}/events", events.ServeHTTP)
	r.Get("/ws", socket.ServeHTTP)

	f.srv = httptest.NewServer(r)
	t.Cleanup(f.srv.Close)
	t.Cleanup(f.reg.Close)
	t.Cleanup(f.hub.Close)
	return f
}

func (f *fixture) createSession(t *testing.T, mode model.Mode) string {
	t.Helper()
	summary, err := f.reg.Create(context.Background(), registry.CreateParams{
		Mode:         mode,
		HostID:       "host-1",
		ContentSetID: "set-1",
		Settings:     model.Settings{WinCondition: model.WinByTime, TimeLimitMinutes: 10},
		Questions:    testQuestions(),
	})
	require.NoError(t, err)
	return summary.Code
}

func (f *fixture) request(t *testing.T, method, path, hostID string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.srv.URL+path, &buf)
	require.NoError(t, err)
	if hostID != "" {
		req.Header.Set(middleware.HostIDHeader, hostID)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func (f *fixture) dial(t *testing.T, hostID string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := f.tryDial(hostID, header)
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (f *fixture) tryDial(hostID string, header http.Header) (*websocket.Conn, *http.Response, error) {
	if header == nil {
		header = http.Header{}
	}
	if hostID != "" {
		header.Set(middleware.HostIDHeader, hostID)
	}
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	return websocket.DefaultDialer.Dial(url, header)
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	msg := map[string]any{"event": event}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// expect reads frames until one named event arrives.
func expect(t *testing.T, conn *websocket.Conn, event string) hub.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env hub.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func expectError(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	env := expect(t, conn, "error")
	var body map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &body))
	return body
}
