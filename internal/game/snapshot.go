package game

import (
	"fmt"
	"slices"
	"time"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/model"
)

// Snapshot is the persisted form of a Session. Connection handles are never
// part of it.
type Snapshot struct {
	Code         string           `json:"code"`
	HostID       string           `json:"hostId"`
	ContentSetID string           `json:"contentSetId"`
	Mode         model.Mode       `json:"mode"`
	Status       model.Status     `json:"status"`
	Settings     model.Settings   `json:"settings"`
	Questions    []model.Question `json:"questions"`
	Players      []Player         `json:"players"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	EndedAt      *time.Time       `json:"endedAt,omitempty"`
	HasArchived  bool             `json:"hasArchived"`

	Gold *GoldQuestState  `json:"gold,omitempty"`
	Hack *CryptoHackState `json:"hack,omitempty"`

	SavedAt time.Time `json:"savedAt"`
}

// Serialize returns a deep copy of the session state safe to hand to another goroutine.
func (s *Session) Serialize() Snapshot {
	snap := Snapshot{
		Code:         s.Code,
		HostID:       s.HostID,
		ContentSetID: s.ContentSetID,
		Mode:         s.Mode,
		Status:       s.Status,
		Settings:     s.Settings,
		Questions:    cloneQuestions(s.Questions),
		Players:      make([]Player, len(s.Players)),
		StartedAt:    cloneTime(s.StartedAt),
		EndedAt:      cloneTime(s.EndedAt),
		HasArchived:  s.HasArchived,
		SavedAt:      s.now(),
	}
	for i, p := range s.Players {
		snap.Players[i] = p.clone()
		snap.Players[i].Handle = ""
	}
	if s.Gold != nil {
		g := *s.Gold
		snap.Gold = &g
	}
	if s.Hack != nil {
		h := *s.Hack
		h.HackingStartedAt = cloneTime(s.Hack.HackingStartedAt)
		snap.Hack = &h
	}
	return snap
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Restore rebuilds a session from snap. Every player comes back disconnected
// with no handle; the host must attach again.
func Restore(snap Snapshot, deps Deps) (*Session, error) {
	if !snap.Mode.Valid() {
		return nil, apperrors.InvalidInput("mode", fmt.Sprintf("unknown mode %q in snapshot %s", snap.Mode, snap.Code))
	}
	if snap.Code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if snap.Status == "" {
		snap.Status = model.StatusLobby
	}
	if !snap.Status.Valid() {
		return nil, apperrors.InvalidInput("status", fmt.Sprintf("unknown status %q in snapshot %s", snap.Status, snap.Code))
	}

	s := &Session{
		Code:         snap.Code,
		HostID:       snap.HostID,
		ContentSetID: snap.ContentSetID,
		Mode:         snap.Mode,
		Status:       snap.Status,
		Settings:     snap.Settings,
		Questions:    cloneQuestions(snap.Questions),
		Players:      make([]*Player, 0, len(snap.Players)),
		StartedAt:    cloneTime(snap.StartedAt),
		EndedAt:      cloneTime(snap.EndedAt),
		HasArchived:  snap.HasArchived,
	}

	switch snap.Mode {
	case model.ModeGoldQuest:
		s.Gold = &GoldQuestState{}
		if snap.Gold != nil {
			*s.Gold = *snap.Gold
		}
	case model.ModeCryptoHack:
		s.Hack = &CryptoHackState{}
		if snap.Hack != nil {
			*s.Hack = *snap.Hack
			s.Hack.HackingStartedAt = cloneTime(snap.Hack.HackingStartedAt)
		}
	}

	for i := range snap.Players {
		p := snap.Players[i].clone()
		p.Handle = ""
		p.Connected = false
		switch snap.Mode {
		case model.ModeGoldQuest:
			p.Hack = nil
			if p.Gold == nil {
				p.Gold = newGoldPlayer()
			}
			if p.Gold.Multiplier < 1 {
				p.Gold.Multiplier = 1
			}
		case model.ModeCryptoHack:
			p.Gold = nil
			if p.Hack == nil {
				p.Hack = newHackPlayer()
			}
			p.Hack.attempts()
		}
		s.Players = append(s.Players, &p)
	}

	s.attach(deps)
	return s, nil
}

// HistoryRecord is the terminal record written once the session has ended.
func (s *Session) HistoryRecord() model.HistoryRecord {
	record := model.HistoryRecord{
		HostID:    s.HostID,
		Mode:      s.Mode,
		Code:      s.Code,
		StartedAt: cloneTime(s.StartedAt),
		Settings:  s.Settings,
		Roster:    make([]model.RosterEntry, len(s.Players)),
	}
	if s.EndedAt != nil {
		record.EndedAt = *s.EndedAt
	} else {
		record.EndedAt = s.now()
	}

	players := slices.Clone(s.Players)
	slices.SortStableFunc(players, func(a, b *Player) int {
		return b.wealth() - a.wealth()
	})
	for i, p := range players {
		record.Roster[i] = model.RosterEntry{
			Name:           p.Name,
			Score:          p.wealth(),
			CorrectCount:   p.CorrectCount,
			IncorrectCount: p.IncorrectCount,
		}
	}
	return record
}
