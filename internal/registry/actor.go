package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/game"
)

const inboxSize = 64

func errSessionClosed() error {
	return apperrors.NotFound("Session")
}

// actor owns one session. Everything that reads or mutates the session runs on
// the actor's goroutine, one job at a time.
type actor struct {
	code    string
	session *game.Session
	inbox   chan func(*game.Session)
	done    chan struct{}
	once    sync.Once
}

func newActor(code string) *actor {
	return &actor{
		code:  code,
		inbox: make(chan func(*game.Session), inboxSize),
		done:  make(chan struct{}),
	}
}

func (a *actor) run() {
	for {
		select {
		case <-a.done:
			return
		case job := <-a.inbox:
			a.apply(job)
		}
	}
}

func (a *actor) apply(job func(*game.Session)) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("code", a.code).Interface("panic", r).Msg("session job panicked")
		}
	}()
	job(a.session)
}

func (a *actor) stop() {
	a.once.Do(func() { close(a.done) })
}

// post queues job without waiting for it to run.
func (a *actor) post(job func(*game.Session)) bool {
	select {
	case a.inbox <- job:
		return true
	case <-a.done:
		return false
	}
}

// do runs fn on the actor and waits for its result.
func (a *actor) do(ctx context.Context, fn func(*game.Session) error) error {
	reply := make(chan error, 1)
	job := func(s *game.Session) {
		var err error = apperrors.Internal("Session failed to process the request")
		defer func() { reply <- err }()
		err = fn(s)
	}

	select {
	case a.inbox <- job:
	case <-a.done:
		return errSessionClosed()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-a.done:
		select {
		case err := <-reply:
			return err
		default:
			return errSessionClosed()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// After implements game.Scheduler by posting msg back into the inbox.
func (a *actor) After(d time.Duration, msg game.Delayed) {
	time.AfterFunc(d, func() {
		a.post(func(s *game.Session) { s.HandleDelayed(msg) })
	})
}
