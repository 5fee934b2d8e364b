package game

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/reward"
)

// GoldQuestState is the chest economy's session-wide bookkeeping.
type GoldQuestState struct {
	ChestsOpened int `json:"chestsOpened"`
	Interactions int `json:"interactions"`
}

func (s *Session) handleGoldEvent(name string, payload json.RawMessage, handle string) error {
	switch name {
	case EventRequestQuestion, EventAnswer, EventOpenChest, EventResolveInteraction:
	default:
		return nil
	}

	p, err := s.actor(handle)
	if err != nil {
		return err
	}

	switch name {
	case EventRequestQuestion:
		return s.goldRequestQuestion(p)
	case EventAnswer:
		return s.goldAnswer(p, payload)
	case EventOpenChest:
		return s.OpenChest(p)
	case EventResolveInteraction:
		var req targetPayload
		if err := decode(payload, &req); err != nil {
			return err
		}
		return s.ResolveInteraction(p, req.Target, reward.ChestKind(req.Kind))
	}
	return nil
}

// goldRequestQuestion serves the next question unless a chest or a target
// choice is still outstanding, in which case that prompt is re-sent instead.
func (s *Session) goldRequestQuestion(p *Player) error {
	if err := s.requirePlaying("request_question"); err != nil {
		return err
	}
	if p.Gold.PendingInteraction != "" {
		s.toPlayer(p, EventChooseTarget, s.chooseTargetPayload(p))
		return nil
	}
	if p.Gold.ChestReady {
		s.toPlayer(p, EventChestReady, map[string]any{})
		return nil
	}
	return s.serveQuestion(p)
}

func (s *Session) goldAnswer(p *Player, payload json.RawMessage) error {
	if err := s.requirePlaying("answer"); err != nil {
		return err
	}
	correct, err := s.grade(p, payload)
	if err != nil {
		return err
	}
	if !correct {
		p.Gold.Streak = 0
		s.broadcastRoster()
		return nil
	}
	p.Gold.Streak++
	p.Gold.ChestReady = true
	s.toPlayer(p, EventChestReady, map[string]any{"streak": p.Gold.Streak})
	s.broadcastRoster()
	return nil
}

// OpenChest draws and applies one chest for p. The earned chest is consumed
// before anything is applied. Swap and steal chests only record the pending
// interaction; ResolveInteraction finishes them.
func (s *Session) OpenChest(p *Player) error {
	if err := s.requirePlaying("open_chest"); err != nil {
		return err
	}
	g := p.Gold
	if g == nil {
		return apperrors.WrongPhase("open_chest")
	}
	if !g.ChestReady {
		return apperrors.ValidationError("No chest to open")
	}
	g.ChestReady = false
	s.Gold.ChestsOpened++

	chest := s.tables.chest(s.deps.Rand)
	reveal := map[string]any{"kind": chest.Kind}

	switch chest.Kind {
	case reward.ChestGold:
		gained := chest.Amount * max(g.Multiplier, 1)
		g.Gold = reward.AddCapped(g.Gold, gained)
		g.Multiplier = 1
		reveal["amount"] = gained
	case reward.ChestLoseGold:
		lost := reward.PercentOf(g.Gold, chest.Percent)
		g.Gold -= lost
		reveal["percent"] = chest.Percent
		reveal["amount"] = lost
	case reward.ChestMultiplier:
		g.Multiplier = chest.Multiplier
		reveal["multiplier"] = chest.Multiplier
	case reward.ChestSwap, reward.ChestSteal:
		g.PendingInteraction = chest.Kind
	}
	reveal["gold"] = g.Gold
	reveal["multiplier"] = g.Multiplier

	s.schedule(s.deps.RevealDelay, Delayed{Kind: DelayedReveal, Player: p.Name, Payload: reveal})
	if chest.Interactive() {
		s.toPlayer(p, EventChooseTarget, s.chooseTargetPayload(p))
	} else {
		s.toPlayer(p, EventGoldUpdated, goldUpdate(g))
		s.broadcastRoster()
	}
	return nil
}

func (s *Session) chooseTargetPayload(p *Player) map[string]any {
	targets := make([]Standing, 0, len(s.Players))
	for _, other := range s.Players {
		if other != p {
			targets = append(targets, other.standing())
		}
	}
	return map[string]any{"kind": p.Gold.PendingInteraction, "targets": targets}
}

func goldUpdate(g *GoldPlayer) map[string]any {
	return map[string]any{"gold": g.Gold, "multiplier": g.Multiplier}
}

// ResolveInteraction finishes a pending swap or steal against the named target.
// kind may be empty, meaning whatever interaction is pending.
func (s *Session) ResolveInteraction(p *Player, targetName string, kind reward.ChestKind) error {
	if err := s.requirePlaying("resolve_interaction"); err != nil {
		return err
	}
	g := p.Gold
	if g == nil || g.PendingInteraction == "" {
		return apperrors.ValidationError("No interaction to resolve")
	}
	if kind != "" && kind != g.PendingInteraction {
		return apperrors.ValidationError("Interaction kind does not match the pending chest")
	}
	victim, err := s.target(p, targetName)
	if err != nil {
		return err
	}

	pending := g.PendingInteraction
	g.PendingInteraction = ""
	vg := victim.Gold

	amount := 0
	switch pending {
	case reward.ChestSwap:
		g.Gold, vg.Gold = vg.Gold, g.Gold
	case reward.ChestSteal:
		amount = reward.StealAmount(vg.Gold)
		vg.Gold -= amount
		g.Gold = reward.AddCapped(g.Gold, amount)
	}
	s.Gold.Interactions++

	log.Debug().
		Str("code", s.Code).
		Str("source", p.Name).
		Str("target", victim.Name).
		Str("kind", string(pending)).
		Int("amount", amount).
		Msg("interaction resolved")

	s.toRoom(EventInteractionOccurred, map[string]any{
		"source": p.Name,
		"target": victim.Name,
		"kind":   pending,
		"amount": amount,
	})
	s.toPlayer(p, EventGoldUpdated, goldUpdate(g))
	s.toPlayer(victim, EventGoldUpdated, goldUpdate(vg))
	s.broadcastRoster()
	return nil
}
