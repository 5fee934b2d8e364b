// Package game implements a live quiz session: the shared lobby/playing/ended
// lifecycle plus the gold quest and crypto hack economies layered on top.
//
// A Session is not safe for concurrent use. The registry gives every session a
// single goroutine that owns it; all mutation, ticks and delayed messages are
// funnelled through that goroutine.
package game

import (
	mrand "math/rand/v2"
	"time"
)

// Broadcaster delivers named events to participants. Implementations must not
// block on network I/O.
type Broadcaster interface {
	ToRoom(code, event string, payload any)
	ToConnection(handle, event string, payload any)
}

// DelayedKind names a message a session schedules for itself.
type DelayedKind string

const (
	DelayedReveal    DelayedKind = "reveal"
	DelayedHostGrace DelayedKind = "host_grace"
)

// Delayed is delivered back to the session through HandleDelayed once its
// delay elapses. Delayed messages are not persisted.
type Delayed struct {
	Kind    DelayedKind
	Player  string
	Payload any
}

// Scheduler delivers msg to the owning session after d.
type Scheduler interface {
	After(d time.Duration, msg Delayed)
}

// Deps are the capabilities injected into a session at creation or recovery.
type Deps struct {
	Out            Broadcaster
	Scheduler      Scheduler
	Rand           *mrand.Rand
	Now            func() time.Time
	RevealDelay    time.Duration
	LobbyHostGrace time.Duration
}

// Inbound event names.
const (
	EventHostJoin           = "host_join"
	EventJoin               = "join"
	EventLeave              = "leave"
	EventStart              = "start"
	EventEnd                = "end"
	EventRequestQuestion    = "request_question"
	EventAnswer             = "answer"
	EventOpenChest          = "open_chest"
	EventResolveInteraction = "resolve_interaction"
	EventSelectPassword     = "select_password"
	EventSelectBox          = "select_box"
	EventRequestHackOptions = "request_hack_options"
	EventAttemptHack        = "attempt_hack"
	EventCompleteTask       = "complete_task"
)

// Outbound event names.
const (
	EventSessionCreated      = "session_created"
	EventHostAttached        = "host_attached"
	EventJoined              = "joined"
	EventRosterChanged       = "roster_changed"
	EventSessionStarted      = "session_started"
	EventPasswordsAvailable  = "passwords_available"
	EventPasswordSelected    = "password_selected"
	EventHackingStarted      = "hacking_started"
	EventQuestionServed      = "question_served"
	EventAnswerGraded        = "answer_graded"
	EventChestReady          = "chest_ready"
	EventChooseTarget        = "choose_target"
	EventRewardRevealed      = "reward_revealed"
	EventGoldUpdated         = "gold_updated"
	EventBalanceUpdated      = "balance_updated"
	EventChoicesOffered      = "choices_offered"
	EventHackOptions         = "hack_options"
	EventHackResult          = "hack_result"
	EventInteractionOccurred = "interaction_occurred"
	EventPlayerLocked        = "player_locked"
	EventPlayerUnlocked      = "player_unlocked"
	EventSessionEnded        = "session_ended"
	EventError               = "error"
)

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     int    `json:"answer"`
}

type targetPayload struct {
	Target string `json:"target"`
	Kind   string `json:"kind,omitempty"`
}

type passwordPayload struct {
	Password string `json:"password"`
}

type boxPayload struct {
	Index int `json:"index"`
}

type hackPayload struct {
	Target string `json:"target"`
	Guess  string `json:"guess"`
}

type taskPayload struct {
	TaskID string `json:"taskId"`
	Answer string `json:"answer"`
}
