// Package registry holds the live sessions of this process. It creates them,
// routes work to each session's goroutine, runs the once-per-second tick pass,
// and persists snapshots and history on a best-effort basis.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quizblitz/live-server/internal/audit"
	"github.com/quizblitz/live-server/internal/config"
	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/game"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/repository"
	"github.com/quizblitz/live-server/internal/reward"
	"github.com/quizblitz/live-server/internal/util"
)

type Options struct {
	Out            game.Broadcaster
	Active         repository.ActiveSessionRepository
	History        repository.HistoryRepository
	RevealDelay    time.Duration
	LobbyHostGrace time.Duration

	// Now, NewRand and NewCode default to the wall clock, a crypto-seeded
	// PRNG and a random numeric code.
	Now     func() time.Time
	NewRand func() *mrand.Rand
	NewCode func() (string, error)
}

type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*actor
	ticks    int

	persisting sync.WaitGroup
}

func New(opts Options) *Registry {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRand == nil {
		opts.NewRand = reward.NewRand
	}
	if opts.NewCode == nil {
		opts.NewCode = func() (string, error) {
			return util.GenerateNumericCode(config.JoinCodeDigits)
		}
	}
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*actor),
	}
}

func (r *Registry) deps(a *actor) game.Deps {
	return game.Deps{
		Out:            r.opts.Out,
		Scheduler:      a,
		Rand:           r.opts.NewRand(),
		Now:            r.opts.Now,
		RevealDelay:    r.opts.RevealDelay,
		LobbyHostGrace: r.opts.LobbyHostGrace,
	}
}

type CreateParams struct {
	Mode         model.Mode
	HostID       string
	ContentSetID string
	Settings     model.Settings
	Questions    []model.Question
}

// Create registers a new session under a fresh join code and writes its first
// snapshot in the background.
func (r *Registry) Create(ctx context.Context, params CreateParams) (game.Summary, error) {
	r.mu.Lock()
	code, err := r.freeCode()
	if err != nil {
		r.mu.Unlock()
		return game.Summary{}, apperrors.Internal("Failed to generate join code").WithCause(err)
	}

	a := newActor(code)
	s, err := game.New(game.CreateParams{
		Code:         code,
		Mode:         params.Mode,
		HostID:       params.HostID,
		ContentSetID: params.ContentSetID,
		Settings:     params.Settings,
		Questions:    params.Questions,
	}, r.deps(a))
	if err != nil {
		r.mu.Unlock()
		return game.Summary{}, err
	}
	a.session = s

	if previous, taken := r.sessions[code]; taken {
		previous.stop()
		audit.Log(ctx, audit.Event{Type: audit.EventCodeCollision, Code: code})
		log.Warn().Str("code", code).Msg("join code space exhausted, replacing live session")
	}
	r.sessions[code] = a
	r.mu.Unlock()

	summary := s.Summary()
	snap := s.Serialize()
	s.AwaitHost()
	go a.run()
	r.saveSnapshot(snap)

	audit.Log(ctx, audit.Event{
		Type:   audit.EventSessionCreate,
		HostID: params.HostID,
		Code:   code,
		Details: map[string]interface{}{
			"mode":      string(params.Mode),
			"questions": len(params.Questions),
		},
	})
	return summary, nil
}

// freeCode draws codes until one is unused, giving up on uniqueness after
// config.JoinCodeAttempts draws. Callers hold r.mu.
func (r *Registry) freeCode() (string, error) {
	var code string
	for attempt := 0; attempt < config.JoinCodeAttempts; attempt++ {
		var err error
		code, err = r.opts.NewCode()
		if err != nil {
			return "", fmt.Errorf("generate join code: %w", err)
		}
		if _, taken := r.sessions[code]; !taken {
			return code, nil
		}
	}
	return code, nil
}

// Handle addresses one live session.
type Handle struct {
	a *actor
}

func (h *Handle) Code() string {
	return h.a.code
}

// Do runs fn on the session's goroutine and returns its error. fn must not
// retain the session.
func (h *Handle) Do(ctx context.Context, fn func(*game.Session) error) error {
	return h.a.do(ctx, fn)
}

func (h *Handle) Summary(ctx context.Context) (game.Summary, error) {
	var summary game.Summary
	err := h.Do(ctx, func(s *game.Session) error {
		summary = s.Summary()
		return nil
	})
	return summary, err
}

func (r *Registry) Lookup(code string) (*Handle, bool) {
	r.mu.RLock()
	a, ok := r.sessions[code]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return &Handle{a: a}, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) actors() []*actor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*actor, 0, len(r.sessions))
	for _, a := range r.sessions {
		out = append(out, a)
	}
	return out
}

// FindByConnection scans every live session for handle. It costs one round
// trip per session, so it is reserved for events that carry no join code.
func (r *Registry) FindByConnection(ctx context.Context, handle string) (*Handle, bool) {
	for _, a := range r.actors() {
		found := false
		err := a.do(ctx, func(s *game.Session) error {
			found = s.HasConnection(handle)
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("code", a.code).Msg("skipping session during connection lookup")
			continue
		}
		if found {
			return &Handle{a: a}, true
		}
	}
	return nil, false
}

// Disconnect marks handle as gone in whichever session it belongs to.
func (r *Registry) Disconnect(ctx context.Context, handle string) bool {
	h, ok := r.FindByConnection(ctx, handle)
	if !ok {
		return false
	}
	err := h.Do(ctx, func(s *game.Session) error {
		s.Disconnect(handle)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("code", h.Code()).Msg("failed to mark connection lost")
		return false
	}
	return true
}

// Dispatch routes an inbound event to the session identified by code.
func (r *Registry) Dispatch(ctx context.Context, code, event string, payload json.RawMessage, handle string) error {
	h, ok := r.Lookup(code)
	if !ok {
		return apperrors.NotFound("Session")
	}
	return h.Do(ctx, func(s *game.Session) error {
		return s.HandleEvent(event, payload, handle)
	})
}

// Remove drops a session from memory and deletes its snapshot in the background.
func (r *Registry) Remove(code string) {
	r.remove(code, nil)
}

// remove drops code, but only while it still belongs to owner when owner is set.
func (r *Registry) remove(code string, owner *game.Session) {
	r.mu.Lock()
	a, ok := r.sessions[code]
	if ok && owner != nil && a.session != owner {
		ok = false
	}
	if ok {
		delete(r.sessions, code)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	a.stop()
	r.deleteSnapshot(code)
	audit.Log(context.Background(), audit.Event{Type: audit.EventSessionRemove, Code: code})
}

// Tick runs one pass over every live session and waits for it, bounded by ctx.
// Sessions are ticked concurrently on their own goroutines.
func (r *Registry) Tick(ctx context.Context) {
	r.mu.Lock()
	r.ticks++
	snapshotDue := r.ticks%config.SnapshotEveryTicks == 0
	r.mu.Unlock()

	type pendingTick struct {
		a   *actor
		ran chan struct{}
	}
	var pending []pendingTick
	for _, a := range r.actors() {
		ran := make(chan struct{})
		queued := tryPost(a, func(s *game.Session) {
			defer close(ran)
			r.tickSession(s, snapshotDue)
		})
		if !queued {
			log.Warn().Str("code", a.code).Msg("session inbox full, skipping tick")
			continue
		}
		pending = append(pending, pendingTick{a: a, ran: ran})
	}

	// A session stopped after its tick was queued never runs it, so its done
	// channel releases the wait as well.
	for _, p := range pending {
		select {
		case <-p.ran:
		case <-p.a.done:
		case <-ctx.Done():
			log.Warn().Err(ctx.Err()).Msg("tick pass did not finish in time")
			return
		}
	}
}

// tryPost queues job unless the inbox is full or the actor is stopped.
func tryPost(a *actor, job func(*game.Session)) bool {
	select {
	case <-a.done:
		return false
	default:
	}
	select {
	case a.inbox <- job:
		return true
	default:
		return false
	}
}

// tickSession runs on the session's goroutine.
func (r *Registry) tickSession(s *game.Session, snapshotDue bool) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("code", s.Code).Interface("panic", rec).Msg("session tick panicked")
		}
	}()

	s.Tick()

	if s.Status == model.StatusEnded && s.MarkArchived() {
		r.archive(s.HistoryRecord(), s.Serialize())
	}
	if s.Status == model.StatusEnded && s.EndedAt != nil && r.opts.Now().Sub(*s.EndedAt) > config.EndedSessionGrace {
		r.remove(s.Code, s)
		return
	}
	if snapshotDue && s.Status == model.StatusPlaying {
		r.saveSnapshot(s.Serialize())
	}
}

func (r *Registry) archive(record model.HistoryRecord, snap game.Snapshot) {
	code := record.Code
	r.persist("archive", code, func(ctx context.Context) error {
		if r.opts.History != nil {
			if _, err := r.opts.History.Create(ctx, record); err != nil {
				return err
			}
		}
		if r.opts.Active != nil {
			return r.opts.Active.Save(ctx, snap)
		}
		return nil
	})
	audit.Log(context.Background(), audit.Event{
		Type:    audit.EventSessionArchive,
		HostID:  record.HostID,
		Code:    code,
		Details: map[string]interface{}{"players": len(record.Roster)},
	})
}

func (r *Registry) saveSnapshot(snap game.Snapshot) {
	if r.opts.Active == nil {
		return
	}
	r.persist("save snapshot", snap.Code, func(ctx context.Context) error {
		return r.opts.Active.Save(ctx, snap)
	})
}

func (r *Registry) deleteSnapshot(code string) {
	if r.opts.Active == nil {
		return
	}
	r.persist("delete snapshot", code, func(ctx context.Context) error {
		return r.opts.Active.Delete(ctx, code)
	})
}

// persist runs fn in the background. Failures are logged and otherwise ignored.
func (r *Registry) persist(op, code string, fn func(context.Context) error) {
	r.persisting.Add(1)
	go func() {
		defer r.persisting.Done()
		ctx, cancel := context.WithTimeout(context.Background(), config.PersistTimeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			log.Error().Err(err).Str("code", code).Msgf("failed to %s", op)
		}
	}()
}

// Recover loads every stored snapshot into memory. It is called once before
// the server accepts connections. Snapshots that cannot be restored are
// logged and left out.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	if r.opts.Active == nil {
		return 0, nil
	}
	snapshots, err := r.opts.Active.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}

	restored := 0
	for _, snap := range snapshots {
		a := newActor(snap.Code)
		s, err := game.Restore(snap, r.deps(a))
		if err != nil {
			log.Error().Err(err).Str("code", snap.Code).Msg("failed to restore session")
			continue
		}
		a.session = s

		r.mu.Lock()
		if _, exists := r.sessions[snap.Code]; exists {
			r.mu.Unlock()
			log.Warn().Str("code", snap.Code).Msg("session already live, skipping snapshot")
			continue
		}
		r.sessions[snap.Code] = a
		r.mu.Unlock()

		s.AwaitHost()
		go a.run()
		restored++
		audit.Log(ctx, audit.Event{
			Type:   audit.EventSessionRecover,
			HostID: snap.HostID,
			Code:   snap.Code,
			Details: map[string]interface{}{
				"status":  string(snap.Status),
				"players": len(snap.Players),
			},
		})
	}

	log.Info().Int("restored", restored).Int("stored", len(snapshots)).Msg("session recovery complete")
	return restored, nil
}

// Wait blocks until background persistence has drained.
func (r *Registry) Wait() {
	r.persisting.Wait()
}

// Close stops every session goroutine and waits for pending writes.
func (r *Registry) Close() {
	r.mu.Lock()
	for code, a := range r.sessions {
		a.stop()
		delete(r.sessions, code)
	}
	r.mu.Unlock()
	r.Wait()
}
