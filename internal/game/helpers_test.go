package game

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/reward"
)

type sentEvent struct {
	Room    string
	Handle  string
	Event   string
	Payload any
}

type recorder struct {
	events []sentEvent
}

func (r *recorder) ToRoom(code, event string, payload any) {
	r.events = append(r.events, sentEvent{Room: code, Event: event, Payload: payload})
}

func (r *recorder) ToConnection(handle, event string, payload any) {
	r.events = append(r.events, sentEvent{Handle: handle, Event: event, Payload: payload})
}

func (r *recorder) named(event string) []sentEvent {
	var out []sentEvent
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *recorder) last(event string) (sentEvent, bool) {
	matches := r.named(event)
	if len(matches) == 0 {
		return sentEvent{}, false
	}
	return matches[len(matches)-1], true
}

func (r *recorder) reset() {
	r.events = nil
}

type scheduled struct {
	Delay time.Duration
	Msg   Delayed
}

type manualScheduler struct {
	pending []scheduled
}

func (m *manualScheduler) After(d time.Duration, msg Delayed) {
	m.pending = append(m.pending, scheduled{Delay: d, Msg: msg})
}

// flush delivers everything scheduled so far.
func (m *manualScheduler) flush(s *Session) {
	pending := m.pending
	m.pending = nil
	for _, p := range pending {
		s.HandleDelayed(p.Msg)
	}
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type harness struct {
	s     *Session
	out   *recorder
	sched *manualScheduler
	clock *clock
}

func testQuestions(n int) []model.Question {
	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			ID:               fmt.Sprintf("q%d", i+1),
			Prompt:           fmt.Sprintf("Question %d?", i+1),
			Options:          []string{"a", "b", "c", "d"},
			CorrectIndex:     1,
			TimeLimitSeconds: 20,
		}
	}
	return questions
}

func newHarness(t *testing.T, mode model.Mode, settings model.Settings) *harness {
	t.Helper()
	h := &harness{
		out:   &recorder{},
		sched: &manualScheduler{},
		clock: &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	s, err := New(CreateParams{
		Code:         "123456",
		Mode:         mode,
		HostID:       "host-1",
		ContentSetID: "set-1",
		Settings:     settings,
		Questions:    testQuestions(3),
	}, Deps{
		Out:            h.out,
		Scheduler:      h.sched,
		Rand:           reward.NewSeededRand(7),
		Now:            h.clock.Now,
		RevealDelay:    1500 * time.Millisecond,
		LobbyHostGrace: 2 * time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, s.AttachHost("host-1", "host-conn"))
	h.s = s
	return h
}

func timeSettings() model.Settings {
	return model.Settings{WinCondition: model.WinByTime, TimeLimitMinutes: 10}
}

func goalSettings(goal int) model.Settings {
	return model.Settings{WinCondition: model.WinByGoal, Goal: goal}
}

func (h *harness) join(t *testing.T, name string) *Player {
	t.Helper()
	p, err := h.s.Join(name, "conn-"+name)
	require.NoError(t, err)
	return p
}

func (h *harness) event(name string, payload string, handle string) error {
	var raw json.RawMessage
	if payload != "" {
		raw = json.RawMessage(payload)
	}
	return h.s.HandleEvent(name, raw, handle)
}

// answer requests a question for p and answers it.
func (h *harness) answer(t *testing.T, p *Player, correct bool) {
	t.Helper()
	require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))
	require.NotEmpty(t, p.CurrentQuestion)
	choice := 1
	if !correct {
		choice = 0
	}
	payload := fmt.Sprintf(`{"questionId":%q,"answer":%d}`, p.CurrentQuestion, choice)
	require.NoError(t, h.event(EventAnswer, payload, p.Handle))
}
