package game

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/reward"
)

// HackPhase is the crypto hack sub-phase inside PLAYING.
type HackPhase string

const (
	PhasePasswordSelection HackPhase = "password_selection"
	PhaseHacking           HackPhase = "hacking"
)

// CryptoHackState is the hacking economy's session-wide state.
type CryptoHackState struct {
	Phase            HackPhase  `json:"phase,omitempty"`
	HackingStartedAt *time.Time `json:"hackingStartedAt,omitempty"`
	Hacks            int        `json:"hacks"`
}

func (s *Session) handleHackEvent(name string, payload json.RawMessage, handle string) error {
	switch name {
	case EventRequestQuestion, EventAnswer, EventSelectPassword, EventSelectBox,
		EventRequestHackOptions, EventAttemptHack, EventCompleteTask:
	default:
		return nil
	}

	p, err := s.actor(handle)
	if err != nil {
		return err
	}

	switch name {
	case EventRequestQuestion:
		return s.hackRequestQuestion(p)
	case EventAnswer:
		return s.hackAnswer(p, payload)
	case EventSelectPassword:
		var req passwordPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.SelectPassword(p, req.Password)
	case EventSelectBox:
		var req boxPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.SelectBox(p, req.Index)
	case EventRequestHackOptions:
		var req targetPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.RequestHackOptions(p, req.Target)
	case EventAttemptHack:
		var req hackPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.AttemptHack(p, req.Target, req.Guess)
	case EventCompleteTask:
		var req taskPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.CompleteTask(p, req.TaskID, req.Answer)
	}
	return nil
}

func (s *Session) hackStart() {
	s.Hack.Phase = PhasePasswordSelection
	s.toRoom(EventPasswordsAvailable, s.passwordsPayload())
}

// AvailablePasswords is the curated list minus words held by connected players.
func (s *Session) AvailablePasswords() []string {
	held := make(map[string]bool)
	for _, p := range s.Players {
		if p.Connected && p.Hack != nil && p.Hack.Password != "" {
			held[p.Hack.Password] = true
		}
	}
	out := make([]string, 0, len(reward.Passwords))
	for _, word := range reward.Passwords {
		if !held[word] {
			out = append(out, word)
		}
	}
	return out
}

func (s *Session) passwordsPayload() map[string]any {
	return map[string]any{
		"phase":     s.Hack.Phase,
		"passwords": s.AvailablePasswords(),
	}
}

func (s *Session) passwordHolder(word string, except *Player) *Player {
	for _, p := range s.Players {
		if p != except && p.Connected && p.Hack != nil && p.Hack.Password == word {
			return p
		}
	}
	return nil
}

// hackReconnected re-sends a returning player's private state. If someone else
// claimed their password while they were away, they must pick a new one.
func (s *Session) hackReconnected(p *Player) {
	h := p.Hack
	if h.Password != "" && s.passwordHolder(h.Password, p) != nil {
		log.Debug().Str("code", s.Code).Str("player", p.Name).Msg("password claimed while disconnected, clearing")
		h.Password = ""
	}
	if s.Status != model.StatusPlaying {
		return
	}
	if h.Password == "" {
		s.toPlayer(p, EventPasswordsAvailable, s.passwordsPayload())
	}
	if h.Glitched && h.CurrentTask != nil {
		s.toPlayer(p, EventPlayerLocked, map[string]any{"task": h.CurrentTask.Public()})
	}
}

// maybeStartHacking moves password selection into hacking once every player on
// the roster has a password. It fires at most once per session.
func (s *Session) maybeStartHacking() {
	if s.Hack.Phase != PhasePasswordSelection || len(s.Players) == 0 {
		return
	}
	for _, p := range s.Players {
		if p.Hack == nil || p.Hack.Password == "" {
			return
		}
	}
	now := s.now()
	s.Hack.Phase = PhaseHacking
	s.Hack.HackingStartedAt = &now
	s.toRoom(EventHackingStarted, map[string]any{"startedAt": now})
	log.Info().Str("code", s.Code).Int("players", len(s.Players)).Msg("hacking phase started")
}

// SelectPassword records word as p's password.
func (s *Session) SelectPassword(p *Player, word string) error {
	if err := s.requirePlaying("select_password"); err != nil {
		return err
	}
	h := p.Hack
	if h == nil {
		return apperrors.WrongPhase("select_password")
	}
	if s.Hack.Phase == PhaseHacking && h.Password != "" {
		return apperrors.WrongPhase("select_password")
	}
	word = strings.ToLower(strings.TrimSpace(word))
	if word == "" {
		return apperrors.MissingRequired("password")
	}
	if !reward.IsPassword(word) {
		return apperrors.InvalidInput("password", "not in the password list")
	}
	if s.passwordHolder(word, p) != nil {
		return apperrors.PasswordTaken(word)
	}

	h.Password = word
	s.toPlayer(p, EventPasswordSelected, map[string]any{"password": word})
	s.toRoom(EventPasswordsAvailable, s.passwordsPayload())
	s.maybeStartHacking()
	return nil
}

func (s *Session) requireHacking(action string) error {
	if err := s.requirePlaying(action); err != nil {
		return err
	}
	if s.Hack.Phase != PhaseHacking {
		return apperrors.WrongPhase(action)
	}
	return nil
}

// hackRequestQuestion walks the per-player queue: password, glitch, pending
// choices, then a question. Only the first outstanding item is sent.
func (s *Session) hackRequestQuestion(p *Player) error {
	if err := s.requirePlaying("request_question"); err != nil {
		return err
	}
	h := p.Hack
	if h.Password == "" {
		s.toPlayer(p, EventPasswordsAvailable, s.passwordsPayload())
		return nil
	}
	if s.Hack.Phase != PhaseHacking {
		return apperrors.WrongPhase("request_question")
	}
	if h.Glitched {
		payload := map[string]any{}
		if h.CurrentTask != nil {
			payload["task"] = h.CurrentTask.Public()
		}
		s.toPlayer(p, EventPlayerLocked, payload)
		return nil
	}
	if len(h.PendingChoices) > 0 {
		s.toPlayer(p, EventChoicesOffered, map[string]any{"count": len(h.PendingChoices)})
		return nil
	}
	return s.serveQuestion(p)
}

func (s *Session) hackAnswer(p *Player, payload json.RawMessage) error {
	if err := s.requireHacking("answer"); err != nil {
		return err
	}
	h := p.Hack
	if h.Glitched {
		return apperrors.Locked()
	}
	if len(h.PendingChoices) > 0 {
		return apperrors.ValidationError("Pick a data packet first")
	}
	correct, err := s.grade(p, payload)
	if err != nil {
		return err
	}
	if correct {
		h.PendingChoices = s.tables.choices(s.deps.Rand)
		s.toPlayer(p, EventChoicesOffered, map[string]any{"count": len(h.PendingChoices)})
	}
	s.broadcastRoster()
	return nil
}

// SelectBox opens one of p's pending data packets. The pending set is cleared
// before the choice is applied.
func (s *Session) SelectBox(p *Player, index int) error {
	if err := s.requireHacking("select_box"); err != nil {
		return err
	}
	h := p.Hack
	if h.Glitched {
		return apperrors.Locked()
	}
	if len(h.PendingChoices) == 0 {
		return apperrors.ValidationError("No data packets to open")
	}
	if index < 0 || index >= len(h.PendingChoices) {
		return apperrors.InvalidInput("index", fmt.Sprintf("must be between 0 and %d", len(h.PendingChoices)-1))
	}

	choices := h.PendingChoices
	h.PendingChoices = nil
	choice := choices[index]

	balance, token := reward.ApplyChoice(h.Balance, choice)
	h.Balance = balance
	if token {
		h.HackTokens++
	}

	s.schedule(s.deps.RevealDelay, Delayed{Kind: DelayedReveal, Player: p.Name, Payload: map[string]any{
		"index":      index,
		"choice":     choice,
		"choices":    choices,
		"balance":    h.Balance,
		"hackTokens": h.HackTokens,
	}})
	s.toPlayer(p, EventBalanceUpdated, balanceUpdate(h))
	s.broadcastRoster()
	return nil
}

func balanceUpdate(h *HackPlayer) map[string]any {
	return map[string]any{"balance": h.Balance, "hackTokens": h.HackTokens}
}

// hackTarget runs the checks shared by option requests and attempts.
func (s *Session) hackTarget(p *Player, targetName, action string) (*Player, error) {
	if err := s.requireHacking(action); err != nil {
		return nil, err
	}
	if p.Hack.Glitched {
		return nil, apperrors.Locked()
	}
	if p.Hack.HackTokens <= 0 {
		return nil, apperrors.ValidationError("A hack token is required")
	}
	victim, err := s.target(p, targetName)
	if err != nil {
		return nil, err
	}
	if victim.Hack == nil || victim.Hack.Password == "" {
		return nil, apperrors.ValidationError("Target has no password yet")
	}
	return victim, nil
}

func (h *HackPlayer) attempts() map[string]int {
	if h.HackAttempts == nil {
		h.HackAttempts = make(map[string]int)
	}
	return h.HackAttempts
}

// RequestHackOptions sends p a hint sized by their failed attempts against the
// target and a shuffled list of guesses containing the real password.
func (s *Session) RequestHackOptions(p *Player, targetName string) error {
	victim, err := s.hackTarget(p, targetName, "request_hack_options")
	if err != nil {
		return err
	}
	attempts := p.Hack.attempts()[victim.Name]
	s.toPlayer(p, EventHackOptions, map[string]any{
		"target":   victim.Name,
		"attempts": attempts,
		"hint":     reward.Hint(victim.Hack.Password, attempts),
		"options":  reward.HackOptions(s.deps.Rand, victim.Hack.Password),
	})
	return nil
}

// AttemptHack checks guess against the target's password. A hit moves a cut of
// the victim's balance to p, spends p's token and glitches the victim. A miss
// only counts against this attacker and victim pair.
func (s *Session) AttemptHack(p *Player, targetName, guess string) error {
	victim, err := s.hackTarget(p, targetName, "attempt_hack")
	if err != nil {
		return err
	}
	ah, vh := p.Hack, victim.Hack
	guess = strings.ToLower(strings.TrimSpace(guess))

	if guess != vh.Password {
		ah.attempts()[victim.Name]++
		attempts := ah.HackAttempts[victim.Name]
		s.toPlayer(p, EventHackResult, map[string]any{
			"target":   victim.Name,
			"success":  false,
			"attempts": attempts,
			"hint":     reward.Hint(vh.Password, attempts),
		})
		return nil
	}

	cut := reward.HackCut(vh.Balance, s.tables.hackCut(s.deps.Rand))
	vh.Balance -= cut
	ah.Balance = reward.AddCapped(ah.Balance, cut)
	delete(ah.attempts(), victim.Name)
	ah.HackTokens--
	if !vh.Glitched {
		task := s.tables.task(s.deps.Rand)
		vh.Glitched = true
		vh.CurrentTask = &task
	}
	s.Hack.Hacks++

	log.Debug().
		Str("code", s.Code).
		Str("source", p.Name).
		Str("target", victim.Name).
		Int("amount", cut).
		Msg("hack succeeded")

	s.toPlayer(p, EventHackResult, map[string]any{
		"target":     victim.Name,
		"success":    true,
		"amount":     cut,
		"balance":    ah.Balance,
		"hackTokens": ah.HackTokens,
	})
	s.toPlayer(victim, EventPlayerLocked, map[string]any{
		"by":      p.Name,
		"amount":  cut,
		"balance": vh.Balance,
		"task":    vh.CurrentTask.Public(),
	})
	s.toRoom(EventInteractionOccurred, map[string]any{
		"source": p.Name,
		"target": victim.Name,
		"kind":   "hack",
		"amount": cut,
	})
	s.broadcastRoster()
	return nil
}

// CompleteTask clears p's glitch when answer solves the current recovery task,
// then serves whatever is next in their queue.
func (s *Session) CompleteTask(p *Player, taskID, answer string) error {
	if err := s.requirePlaying("complete_task"); err != nil {
		return err
	}
	h := p.Hack
	if !h.Glitched || h.CurrentTask == nil {
		return apperrors.ValidationError("No recovery task pending")
	}
	if taskID != "" && taskID != h.CurrentTask.ID {
		return apperrors.ValidationError("Task does not match the current recovery task")
	}
	if !h.CurrentTask.Check(answer) {
		return apperrors.ValidationError("Incorrect recovery answer")
	}

	h.Glitched = false
	h.CurrentTask = nil
	s.toPlayer(p, EventPlayerUnlocked, map[string]any{})
	s.broadcastRoster()
	return s.hackRequestQuestion(p)
}
