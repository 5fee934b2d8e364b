package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/model"
)

func TestNew(t *testing.T) {
	t.Run("rejects unknown mode", func(t *testing.T) {
		_, err := New(CreateParams{Code: "111111", Mode: "chess"}, Deps{})
		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("starts in the lobby with mode state", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		assert.Equal(t, model.StatusLobby, h.s.Status)
		assert.NotNil(t, h.s.Gold)
		assert.Nil(t, h.s.Hack)
	})

	t.Run("copies questions", func(t *testing.T) {
		questions := testQuestions(2)
		s, err := New(CreateParams{Code: "111111", Mode: model.ModeCryptoHack, Questions: questions}, Deps{})
		require.NoError(t, err)
		questions[0].Options[0] = "changed"
		assert.Equal(t, "a", s.Questions[0].Options[0])
	})
}

func TestJoin(t *testing.T) {
	t.Run("adds players in the lobby", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")

		assert.True(t, p.Connected)
		assert.Equal(t, 1, p.Gold.Multiplier)
		assert.Len(t, h.s.Players, 1)

		joined, ok := h.out.last(EventJoined)
		require.True(t, ok)
		assert.Equal(t, "conn-Ada", joined.Handle)
		_, ok = h.out.last(EventRosterChanged)
		assert.True(t, ok)
	})

	t.Run("same name reconnects with state intact", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")
		p.Gold.Gold = 120
		require.True(t, h.s.Disconnect("conn-Ada"))
		assert.False(t, p.Connected)

		again, err := h.s.Join("Ada", "conn-new")
		require.NoError(t, err)
		assert.Same(t, p, again)
		assert.True(t, again.Connected)
		assert.Equal(t, "conn-new", again.Handle)
		assert.Equal(t, 120, again.Gold.Gold)
		assert.Len(t, h.s.Players, 1)
	})

	t.Run("rejects invalid names", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		_, err := h.s.Join("   ", "c1")
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		_, err = h.s.Join("this name is far too long to fit", "c1")
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
	})

	t.Run("late join requires allowLateJoin", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")
		require.NoError(t, h.s.Start())

		_, err := h.s.Join("Bob", "conn-Bob")
		assert.Equal(t, apperrors.ErrCodeWrongPhase, apperrors.GetCode(err))

		h.s.Settings.AllowLateJoin = true
		_, err = h.s.Join("Bob", "conn-Bob")
		assert.NoError(t, err)
	})

	t.Run("reconnect is allowed while playing without late join", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")
		require.NoError(t, h.s.Start())
		h.s.Disconnect("conn-Ada")

		_, err := h.s.Join("Ada", "conn-back")
		assert.NoError(t, err)
	})

	t.Run("rejects joins once ended", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")
		h.s.End()

		_, err := h.s.Join("Ada", "conn-x")
		assert.Equal(t, apperrors.ErrCodeWrongPhase, apperrors.GetCode(err))
	})

	t.Run("one connection cannot hold two players", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")
		_, err := h.s.Join("Bob", "conn-Ada")
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	})
}

func TestLeaveAndDisconnect(t *testing.T) {
	t.Run("leave removes the player by handle", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")
		h.join(t, "Bob")

		assert.True(t, h.s.Leave("conn-Ada"))
		assert.False(t, h.s.Leave("conn-Ada"))
		require.Len(t, h.s.Players, 1)
		assert.Equal(t, "Bob", h.s.Players[0].Name)
	})

	t.Run("disconnect keeps the record", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")

		assert.True(t, h.s.Disconnect("conn-Ada"))
		require.Len(t, h.s.Players, 1)
		assert.False(t, h.s.Players[0].Connected)
		assert.False(t, h.s.HasConnection("conn-Ada"))
		assert.False(t, h.s.Disconnect("unknown"))
	})

	t.Run("host leaving the lobby ends it after the grace period", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		require.True(t, h.s.Disconnect("host-conn"))
		require.Len(t, h.sched.pending, 1)
		assert.Equal(t, 2*time.Minute, h.sched.pending[0].Delay)
		assert.Equal(t, DelayedHostGrace, h.sched.pending[0].Msg.Kind)

		h.sched.flush(h.s)
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})

	t.Run("host returning within the grace period keeps the lobby", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.s.Disconnect("host-conn")
		require.NoError(t, h.s.AttachHost("host-1", "host-conn-2"))

		h.sched.flush(h.s)
		assert.Equal(t, model.StatusLobby, h.s.Status)
	})
}

func TestAttachHost(t *testing.T) {
	h := newHarness(t, model.ModeGoldQuest, timeSettings())

	err := h.s.AttachHost("someone-else", "c9")
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))
	assert.True(t, h.s.HasConnection("host-conn"))
	assert.False(t, h.s.HasConnection("c9"))
}

func TestStartAndEnd(t *testing.T) {
	t.Run("only the host can start", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")

		err := h.event(EventStart, "", "conn-Ada")
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))

		require.NoError(t, h.event(EventStart, "", "host-conn"))
		assert.Equal(t, model.StatusPlaying, h.s.Status)
		require.NotNil(t, h.s.StartedAt)
		assert.Equal(t, h.clock.now, *h.s.StartedAt)

		started, ok := h.out.last(EventSessionStarted)
		require.True(t, ok)
		assert.Equal(t, "123456", started.Room)
	})

	t.Run("start twice is a wrong phase", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		require.NoError(t, h.s.Start())
		assert.Equal(t, apperrors.ErrCodeWrongPhase, apperrors.GetCode(h.s.Start()))
	})

	t.Run("an ended session cannot be started again", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.s.End()
		assert.Equal(t, apperrors.ErrCodeWrongPhase, apperrors.GetCode(h.s.Start()))
		assert.Equal(t, model.StatusEnded, h.s.Status)
		assert.Nil(t, h.s.StartedAt)
	})

	t.Run("end is idempotent and ranks by wealth", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		low := h.join(t, "Low")
		high := h.join(t, "High")
		require.NoError(t, h.s.Start())
		low.Gold.Gold = 10
		high.Gold.Gold = 90

		h.s.End()
		endedAt := *h.s.EndedAt
		h.clock.advance(time.Minute)
		h.s.End()

		assert.Equal(t, model.StatusEnded, h.s.Status)
		assert.Equal(t, endedAt, *h.s.EndedAt)
		assert.Len(t, h.out.named(EventSessionEnded), 1)
		assert.Equal(t, "High", h.s.Players[0].Name)
		assert.Equal(t, 90, h.s.Players[0].Score)
	})

	t.Run("end works from the lobby", func(t *testing.T) {
		h := newHarness(t, model.ModeCryptoHack, timeSettings())
		require.NoError(t, h.event(EventEnd, "", "host-conn"))
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})
}

func TestTick(t *testing.T) {
	t.Run("no-op outside of play", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.clock.advance(time.Hour)
		h.s.Tick()
		assert.Equal(t, model.StatusLobby, h.s.Status)
	})

	t.Run("ends when the time limit elapses", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		require.NoError(t, h.s.Start())

		h.clock.advance(9*time.Minute + 59*time.Second)
		h.s.Tick()
		assert.Equal(t, model.StatusPlaying, h.s.Status)

		h.clock.advance(time.Second)
		h.s.Tick()
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})

	t.Run("ignores time for goal games", func(t *testing.T) {
		h := newHarness(t, model.ModeCryptoHack, goalSettings(100))
		require.NoError(t, h.s.Start())
		h.clock.advance(24 * time.Hour)
		h.s.Tick()
		assert.Equal(t, model.StatusPlaying, h.s.Status)
	})

	t.Run("ends when a balance reaches the goal", func(t *testing.T) {
		h := newHarness(t, model.ModeCryptoHack, goalSettings(100))
		p := h.join(t, "Ada")
		require.NoError(t, h.s.Start())

		p.Hack.Balance = 99
		h.s.Tick()
		assert.Equal(t, model.StatusPlaying, h.s.Status)

		p.Hack.Balance = 100
		h.s.Tick()
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})
}

func TestHandleEvent(t *testing.T) {
	h := newHarness(t, model.ModeGoldQuest, timeSettings())
	h.join(t, "Ada")

	t.Run("ignores unknown events", func(t *testing.T) {
		assert.NoError(t, h.event("dance", `{"x":1}`, "conn-Ada"))
		assert.NoError(t, h.event(EventSelectBox, `{"index":0}`, "conn-Ada"))
	})

	t.Run("rejects actions from unknown connections", func(t *testing.T) {
		err := h.event(EventRequestQuestion, "", "stranger")
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.GetCode(err))
	})

	t.Run("rejects malformed payloads", func(t *testing.T) {
		require.NoError(t, h.s.Start())
		err := h.event(EventAnswer, `{"questionId":`, "conn-Ada")
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestRequestQuestion(t *testing.T) {
	t.Run("never repeats until the pool is exhausted", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")
		require.NoError(t, h.s.Start())

		for round := 0; round < 5; round++ {
			served := map[string]bool{}
			for i := 0; i < len(h.s.Questions); i++ {
				require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))
				assert.False(t, served[p.CurrentQuestion], "question %s repeated in round %d", p.CurrentQuestion, round)
				served[p.CurrentQuestion] = true
			}
			assert.Len(t, served, len(h.s.Questions))
		}
	})

	t.Run("tracks each player separately", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		a := h.join(t, "Ada")
		b := h.join(t, "Bob")
		require.NoError(t, h.s.Start())

		require.NoError(t, h.event(EventRequestQuestion, "", a.Handle))
		require.NoError(t, h.event(EventRequestQuestion, "", a.Handle))
		assert.Len(t, a.Seen, 2)
		assert.Empty(t, b.Seen)
	})

	t.Run("served question hides the answer", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")
		require.NoError(t, h.s.Start())
		require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))

		served, ok := h.out.last(EventQuestionServed)
		require.True(t, ok)
		payload := served.Payload.(map[string]any)
		_, isPublic := payload["question"].(model.PublicQuestion)
		assert.True(t, isPublic)
	})

	t.Run("answers must match the current question", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		p := h.join(t, "Ada")
		require.NoError(t, h.s.Start())
		require.NoError(t, h.event(EventRequestQuestion, "", p.Handle))

		err := h.event(EventAnswer, `{"questionId":"nope","answer":1}`, p.Handle)
		assert.Equal(t, apperrors.ErrCodeValidation, apperrors.GetCode(err))
	})
}

func TestMarkArchived(t *testing.T) {
	h := newHarness(t, model.ModeGoldQuest, timeSettings())
	assert.True(t, h.s.MarkArchived())
	assert.False(t, h.s.MarkArchived())
	assert.True(t, h.s.HasArchived)
}

func TestHostGrace(t *testing.T) {
	t.Run("host leave event detaches the host and starts the grace", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.join(t, "Ada")

		require.NoError(t, h.event(EventLeave, "", "host-conn"))
		assert.False(t, h.s.HasConnection("host-conn"))
		require.Len(t, h.s.Players, 1)
		require.Len(t, h.sched.pending, 1)
		assert.Equal(t, DelayedHostGrace, h.sched.pending[0].Msg.Kind)
		assert.Equal(t, 2*time.Minute, h.sched.pending[0].Delay)

		err := h.event(EventStart, "", "host-conn")
		assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.GetCode(err))

		h.sched.flush(h.s)
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})

	t.Run("unattended lobby waits for a host", func(t *testing.T) {
		h := newHarness(t, model.ModeCryptoHack, timeSettings())
		h.s.Disconnect("host-conn")
		h.sched.pending = nil

		h.s.AwaitHost()
		require.Len(t, h.sched.pending, 1)
		h.sched.flush(h.s)
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})

	t.Run("no grace while a host is attached or after start", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.s.AwaitHost()
		assert.Empty(t, h.sched.pending)

		require.NoError(t, h.s.Start())
		h.s.Leave("host-conn")
		assert.Empty(t, h.sched.pending)
		assert.Equal(t, model.StatusPlaying, h.s.Status)
	})

	t.Run("a stale grace from an earlier absence is ignored", func(t *testing.T) {
		h := newHarness(t, model.ModeGoldQuest, timeSettings())
		h.s.Disconnect("host-conn")
		require.NoError(t, h.s.AttachHost("host-1", "host-conn-2"))
		h.s.Disconnect("host-conn-2")
		require.Len(t, h.sched.pending, 2)

		stale := h.sched.pending[0].Msg
		h.s.HandleDelayed(stale)
		assert.Equal(t, model.StatusLobby, h.s.Status)

		h.s.HandleDelayed(h.sched.pending[1].Msg)
		assert.Equal(t, model.StatusEnded, h.s.Status)
	})
}
