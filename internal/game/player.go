package game

import (
	"maps"
	"slices"

	"github.com/quizblitz/live-server/internal/reward"
)

// Player is keyed by Name for its whole life in the session. Handle is the
// current connection and changes on every reconnect, so it is never persisted.
type Player struct {
	Handle          string   `json:"-"`
	Name            string   `json:"name"`
	Connected       bool     `json:"connected"`
	Score           int      `json:"score"`
	CorrectCount    int      `json:"correctCount"`
	IncorrectCount  int      `json:"incorrectCount"`
	Seen            []string `json:"seen,omitempty"`
	CurrentQuestion string   `json:"currentQuestion,omitempty"`

	Gold *GoldPlayer `json:"gold,omitempty"`
	Hack *HackPlayer `json:"hack,omitempty"`
}

type GoldPlayer struct {
	Gold               int              `json:"gold"`
	Multiplier         int              `json:"multiplier"`
	Streak             int              `json:"streak"`
	ChestReady         bool             `json:"chestReady,omitempty"`
	PendingInteraction reward.ChestKind `json:"pendingInteraction,omitempty"`
}

type HackPlayer struct {
	Balance        int             `json:"balance"`
	Password       string          `json:"password,omitempty"`
	Glitched       bool            `json:"glitched,omitempty"`
	CurrentTask    *reward.Task    `json:"currentTask,omitempty"`
	PendingChoices []reward.Choice `json:"pendingChoices,omitempty"`
	HackTokens     int             `json:"hackTokens,omitempty"`
	// HackAttempts counts failed guesses per victim name.
	HackAttempts map[string]int `json:"hackAttempts,omitempty"`
}

func newGoldPlayer() *GoldPlayer {
	return &GoldPlayer{Multiplier: 1}
}

func newHackPlayer() *HackPlayer {
	return &HackPlayer{HackAttempts: make(map[string]int)}
}

func (p *Player) clone() Player {
	c := *p
	c.Seen = slices.Clone(p.Seen)
	if p.Gold != nil {
		g := *p.Gold
		c.Gold = &g
	}
	if p.Hack != nil {
		h := *p.Hack
		if p.Hack.CurrentTask != nil {
			task := *p.Hack.CurrentTask
			h.CurrentTask = &task
		}
		h.PendingChoices = slices.Clone(p.Hack.PendingChoices)
		h.HackAttempts = maps.Clone(p.Hack.HackAttempts)
		c.Hack = &h
	}
	return c
}

// wealth is the mode's economic score: gold or crypto balance.
func (p *Player) wealth() int {
	switch {
	case p.Gold != nil:
		return p.Gold.Gold
	case p.Hack != nil:
		return p.Hack.Balance
	default:
		return p.Score
	}
}

// Standing is a player's public leaderboard entry.
type Standing struct {
	Name           string `json:"name"`
	Connected      bool   `json:"connected"`
	Score          int    `json:"score"`
	CorrectCount   int    `json:"correctCount"`
	IncorrectCount int    `json:"incorrectCount"`
	Glitched       bool   `json:"glitched,omitempty"`
}

func (p *Player) standing() Standing {
	st := Standing{
		Name:           p.Name,
		Connected:      p.Connected,
		Score:          p.wealth(),
		CorrectCount:   p.CorrectCount,
		IncorrectCount: p.IncorrectCount,
	}
	if p.Hack != nil {
		st.Glitched = p.Hack.Glitched
	}
	return st
}

// PlayerView is the private state sent to the player's own connection.
type PlayerView struct {
	Name           string             `json:"name"`
	Score          int                `json:"score"`
	CorrectCount   int                `json:"correctCount"`
	IncorrectCount int                `json:"incorrectCount"`
	Gold           *int               `json:"gold,omitempty"`
	Multiplier     *int               `json:"multiplier,omitempty"`
	Streak         *int               `json:"streak,omitempty"`
	Balance        *int               `json:"balance,omitempty"`
	Password       string             `json:"password,omitempty"`
	Glitched       bool               `json:"glitched,omitempty"`
	Task           *reward.PublicTask `json:"task,omitempty"`
	PendingChoices int                `json:"pendingChoices,omitempty"`
	HackTokens     int                `json:"hackTokens,omitempty"`
}

func (p *Player) view() PlayerView {
	v := PlayerView{
		Name:           p.Name,
		Score:          p.wealth(),
		CorrectCount:   p.CorrectCount,
		IncorrectCount: p.IncorrectCount,
	}
	if g := p.Gold; g != nil {
		gold, mult, streak := g.Gold, g.Multiplier, g.Streak
		v.Gold, v.Multiplier, v.Streak = &gold, &mult, &streak
	}
	if h := p.Hack; h != nil {
		balance := h.Balance
		v.Balance = &balance
		v.Password = h.Password
		v.Glitched = h.Glitched
		if h.CurrentTask != nil {
			task := h.CurrentTask.Public()
			v.Task = &task
		}
		v.PendingChoices = len(h.PendingChoices)
		v.HackTokens = h.HackTokens
	}
	return v
}
