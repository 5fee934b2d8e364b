package model

// Mode selects the economic mini-game layered on top of the quiz.
type Mode string

const (
	ModeGoldQuest  Mode = "gold_quest"
	ModeCryptoHack Mode = "crypto_hack"
)

func (m Mode) Valid() bool {
	return m == ModeGoldQuest || m == ModeCryptoHack
}

// Status is the session lifecycle. It only ever advances lobby -> playing -> ended.
type Status string

const (
	StatusLobby   Status = "lobby"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

func (s Status) rank() int {
	switch s {
	case StatusLobby:
		return 0
	case StatusPlaying:
		return 1
	case StatusEnded:
		return 2
	default:
		return -1
	}
}

func (s Status) Valid() bool {
	return s.rank() >= 0
}

// CanAdvanceTo reports whether moving from s to next respects the lifecycle order.
func (s Status) CanAdvanceTo(next Status) bool {
	return next.rank() > s.rank()
}

type WinCondition string

const (
	WinByTime WinCondition = "time"
	WinByGoal WinCondition = "goal"
)

// Settings are fixed when the session is created.
type Settings struct {
	WinCondition     WinCondition `json:"winCondition"`
	TimeLimitMinutes int          `json:"timeLimitMinutes"`
	Goal             int          `json:"goal"`
	AllowLateJoin    bool         `json:"allowLateJoin"`
}
