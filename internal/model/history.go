package model

import "time"

// RosterEntry is a player's final standing as written to history.
type RosterEntry struct {
	Name           string `json:"name"`
	Score          int    `json:"score"`
	CorrectCount   int    `json:"correctCount"`
	IncorrectCount int    `json:"incorrectCount"`
}

// HistoryRecord is the terminal record of a completed session.
type HistoryRecord struct {
	ID        string        `db:"id" json:"id"`
	HostID    string        `db:"host_id" json:"hostId"`
	Mode      Mode          `db:"mode" json:"mode"`
	Code      string        `db:"code" json:"code"`
	StartedAt *time.Time    `db:"started_at" json:"startedAt,omitempty"`
	EndedAt   time.Time     `db:"ended_at" json:"endedAt"`
	Settings  Settings      `db:"-" json:"settings"`
	Roster    []RosterEntry `db:"-" json:"roster"`
}
