package game

import (
	"encoding/json"
	"fmt"
	mrand "math/rand/v2"
	"slices"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/reward"
	"github.com/quizblitz/live-server/internal/util"
)

// Session is one running game addressed by its join code. Exactly one of Gold
// or Hack is set, matching Mode.
type Session struct {
	Code         string
	HostID       string
	ContentSetID string
	Mode         model.Mode
	Status       model.Status
	Settings     model.Settings
	Questions    []model.Question
	Players      []*Player
	StartedAt    *time.Time
	EndedAt      *time.Time
	HasArchived  bool

	Gold *GoldQuestState
	Hack *CryptoHackState

	hostHandle string
	// hostGrace versions the pending host grace so a stale timer from an
	// earlier absence cannot end the lobby early.
	hostGrace  int
	deps       Deps
	tables     tables
}

// tables are the reward draws, swappable so rules can be exercised with fixed outcomes.
type tables struct {
	chest   func(*mrand.Rand) reward.Chest
	choices func(*mrand.Rand) []reward.Choice
	task    func(*mrand.Rand) reward.Task
	hackCut func(*mrand.Rand) float64
}

func defaultTables() tables {
	return tables{
		chest:   reward.DrawChest,
		choices: reward.DrawChoices,
		task:    reward.DrawTask,
		hackCut: reward.HackCutPercent,
	}
}

type CreateParams struct {
	Code         string
	Mode         model.Mode
	HostID       string
	ContentSetID string
	Settings     model.Settings
	Questions    []model.Question
}

// New builds a session in the lobby. Questions are copied so later content
// edits never reach a running game.
func New(params CreateParams, deps Deps) (*Session, error) {
	s := &Session{
		Code:         params.Code,
		HostID:       params.HostID,
		ContentSetID: params.ContentSetID,
		Mode:         params.Mode,
		Status:       model.StatusLobby,
		Settings:     params.Settings,
		Questions:    cloneQuestions(params.Questions),
	}
	switch params.Mode {
	case model.ModeGoldQuest:
		s.Gold = &GoldQuestState{}
	case model.ModeCryptoHack:
		s.Hack = &CryptoHackState{}
	default:
		return nil, apperrors.InvalidInput("mode", fmt.Sprintf("unknown mode %q", params.Mode))
	}
	s.attach(deps)
	return s, nil
}

func (s *Session) attach(deps Deps) {
	if deps.Rand == nil {
		deps.Rand = reward.NewRand()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s.deps = deps
	s.tables = defaultTables()
}

func cloneQuestions(questions []model.Question) []model.Question {
	out := make([]model.Question, len(questions))
	for i, q := range questions {
		q.Options = slices.Clone(q.Options)
		out[i] = q
	}
	return out
}

func (s *Session) now() time.Time {
	return s.deps.Now()
}

func (s *Session) toRoom(event string, payload any) {
	if s.deps.Out != nil {
		s.deps.Out.ToRoom(s.Code, event, payload)
	}
}

func (s *Session) toHandle(handle, event string, payload any) {
	if s.deps.Out != nil && handle != "" {
		s.deps.Out.ToConnection(handle, event, payload)
	}
}

func (s *Session) toPlayer(p *Player, event string, payload any) {
	if p.Connected {
		s.toHandle(p.Handle, event, payload)
	}
}

func (s *Session) schedule(d time.Duration, msg Delayed) {
	if s.deps.Scheduler == nil {
		s.HandleDelayed(msg)
		return
	}
	s.deps.Scheduler.After(d, msg)
}

func (s *Session) playerByName(name string) *Player {
	for _, p := range s.Players {
		if p.Name == name {
			return p
		}
	}
	return nil
}

func (s *Session) playerByHandle(handle string) *Player {
	if handle == "" {
		return nil
	}
	for _, p := range s.Players {
		if p.Handle == handle {
			return p
		}
	}
	return nil
}

// Player returns the roster entry for name.
func (s *Session) Player(name string) (*Player, bool) {
	p := s.playerByName(name)
	return p, p != nil
}

// HasConnection reports whether handle belongs to the host or a player here.
func (s *Session) HasConnection(handle string) bool {
	if handle == "" {
		return false
	}
	return s.hostHandle == handle || s.playerByHandle(handle) != nil
}

// AttachHost binds the host's connection. hostID must match the creator.
func (s *Session) AttachHost(hostID, handle string) error {
	if hostID == "" || hostID != s.HostID {
		return apperrors.Forbidden("Only the host can control this session")
	}
	s.hostHandle = handle
	s.toHandle(handle, EventHostAttached, s.summary())
	return nil
}

func (s *Session) requireHost(handle, action string) error {
	if handle == "" || handle != s.hostHandle {
		return apperrors.Forbidden(fmt.Sprintf("Only the host can %s the session", action))
	}
	return nil
}

// Join adds a player or, when name is already on the roster, reconnects it
// under the new handle with its economic state intact.
func (s *Session) Join(name, handle string) (*Player, error) {
	normalized, ok := util.NormalizeDisplayName(name)
	if !ok {
		return nil, apperrors.InvalidInput("name", fmt.Sprintf("must be 1-%d characters", util.MaxDisplayNameLength))
	}
	if handle == s.hostHandle && handle != "" {
		return nil, apperrors.Conflict("The host connection cannot join as a player")
	}
	if s.Status == model.StatusEnded {
		return nil, apperrors.WrongPhase("join")
	}
	if other := s.playerByHandle(handle); other != nil && other.Name != normalized {
		return nil, apperrors.Conflict("Connection already joined as another player")
	}

	if p := s.playerByName(normalized); p != nil {
		p.Handle = handle
		p.Connected = true
		if s.Hack != nil {
			s.hackReconnected(p)
		}
		s.toPlayer(p, EventJoined, s.joinedPayload(p, true))
		s.broadcastRoster()
		log.Debug().Str("code", s.Code).Str("player", p.Name).Msg("player reconnected")
		return p, nil
	}

	if s.Status == model.StatusPlaying && !s.Settings.AllowLateJoin {
		return nil, apperrors.WrongPhase("join")
	}

	p := &Player{Handle: handle, Name: normalized, Connected: true}
	switch s.Mode {
	case model.ModeGoldQuest:
		p.Gold = newGoldPlayer()
	case model.ModeCryptoHack:
		p.Hack = newHackPlayer()
	}
	s.Players = append(s.Players, p)

	s.toPlayer(p, EventJoined, s.joinedPayload(p, false))
	if s.Hack != nil && s.Status == model.StatusPlaying {
		s.toPlayer(p, EventPasswordsAvailable, s.passwordsPayload())
	}
	s.broadcastRoster()
	return p, nil
}

func (s *Session) joinedPayload(p *Player, reconnected bool) map[string]any {
	return map[string]any{
		"code":        s.Code,
		"mode":        s.Mode,
		"status":      s.Status,
		"settings":    s.Settings,
		"startedAt":   s.StartedAt,
		"reconnected": reconnected,
		"you":         p.view(),
	}
}

// Leave removes the player bound to handle from the roster. A host leaving
// is detached the same way as a lost host connection.
func (s *Session) Leave(handle string) bool {
	if handle != "" && handle == s.hostHandle {
		s.detachHost()
		return true
	}
	idx := slices.IndexFunc(s.Players, func(p *Player) bool { return handle != "" && p.Handle == handle })
	if idx < 0 {
		return false
	}
	name := s.Players[idx].Name
	s.Players = slices.Delete(s.Players, idx, idx+1)
	log.Debug().Str("code", s.Code).Str("player", name).Msg("player left")

	s.broadcastRoster()
	if s.Hack != nil {
		s.toRoom(EventPasswordsAvailable, s.passwordsPayload())
		s.maybeStartHacking()
	}
	return true
}

// Disconnect marks the connection lost without dropping any state. A host that
// drops out of the lobby has LobbyHostGrace to come back before the session ends.
func (s *Session) Disconnect(handle string) bool {
	if handle == "" {
		return false
	}
	if s.hostHandle == handle {
		s.detachHost()
		return true
	}
	p := s.playerByHandle(handle)
	if p == nil {
		return false
	}
	p.Connected = false
	p.Handle = ""
	s.broadcastRoster()
	if s.Hack != nil {
		s.toRoom(EventPasswordsAvailable, s.passwordsPayload())
	}
	return true
}

func (s *Session) detachHost() {
	s.hostHandle = ""
	log.Debug().Str("code", s.Code).Msg("host detached")
	s.AwaitHost()
}

// AwaitHost gives an unattended lobby LobbyHostGrace for the host to attach
// before the session ends. It does nothing once play has started or while a
// host is attached.
func (s *Session) AwaitHost() {
	if s.Status != model.StatusLobby || s.hostHandle != "" {
		return
	}
	s.hostGrace++
	s.schedule(s.deps.LobbyHostGrace, Delayed{Kind: DelayedHostGrace, Payload: s.hostGrace})
}

// Start moves the lobby into play.
func (s *Session) Start() error {
	if !s.Status.CanAdvanceTo(model.StatusPlaying) {
		return apperrors.WrongPhase("start")
	}
	now := s.now()
	s.Status = model.StatusPlaying
	s.StartedAt = &now

	s.toRoom(EventSessionStarted, map[string]any{
		"settings":  s.Settings,
		"startedAt": now,
		"mode":      s.Mode,
	})
	if s.Hack != nil {
		s.hackStart()
	}
	log.Info().Str("code", s.Code).Str("mode", string(s.Mode)).Int("players", len(s.Players)).Msg("session started")
	return nil
}

// End finishes the session from any state. Calling it again is a no-op. It
// never writes history; archiving belongs to the registry.
func (s *Session) End() {
	if !s.Status.CanAdvanceTo(model.StatusEnded) {
		return
	}
	now := s.now()
	s.Status = model.StatusEnded
	s.EndedAt = &now

	for _, p := range s.Players {
		p.Score = p.wealth()
	}
	sort.SliceStable(s.Players, func(i, j int) bool {
		return s.Players[i].Score > s.Players[j].Score
	})

	s.toRoom(EventSessionEnded, map[string]any{
		"endedAt": now,
		"ranking": s.standings(),
	})
	log.Info().Str("code", s.Code).Int("players", len(s.Players)).Msg("session ended")
}

// Tick evaluates the win conditions. It is a no-op outside of play.
func (s *Session) Tick() {
	if s.Status != model.StatusPlaying {
		return
	}
	if s.timeExpired() {
		s.End()
		return
	}
	if s.Settings.WinCondition != model.WinByGoal {
		return
	}
	for _, p := range s.Players {
		if p.wealth() >= s.Settings.Goal {
			s.End()
			return
		}
	}
}

func (s *Session) timeExpired() bool {
	if s.Settings.WinCondition != model.WinByTime || s.StartedAt == nil {
		return false
	}
	limit := time.Duration(s.Settings.TimeLimitMinutes) * time.Minute
	return s.now().Sub(*s.StartedAt) >= limit
}

// HandleEvent dispatches a player or host action. Unknown names are ignored.
func (s *Session) HandleEvent(name string, payload json.RawMessage, handle string) error {
	switch name {
	case EventStart:
		if err := s.requireHost(handle, "start"); err != nil {
			return err
		}
		return s.Start()
	case EventEnd:
		if err := s.requireHost(handle, "end"); err != nil {
			return err
		}
		s.End()
		return nil
	case EventLeave:
		s.Leave(handle)
		return nil
	}

	switch s.Mode {
	case model.ModeGoldQuest:
		return s.handleGoldEvent(name, payload, handle)
	case model.ModeCryptoHack:
		return s.handleHackEvent(name, payload, handle)
	}
	return nil
}

// HandleDelayed receives a message previously handed to the Scheduler.
func (s *Session) HandleDelayed(msg Delayed) {
	switch msg.Kind {
	case DelayedReveal:
		if p := s.playerByName(msg.Player); p != nil {
			s.toPlayer(p, EventRewardRevealed, msg.Payload)
		}
	case DelayedHostGrace:
		if seq, ok := msg.Payload.(int); ok && seq != s.hostGrace {
			return
		}
		if s.Status == model.StatusLobby && s.hostHandle == "" {
			log.Info().Str("code", s.Code).Msg("host did not return to the lobby, ending session")
			s.End()
		}
	}
}

// MarkArchived flips HasArchived once and reports whether this call did it.
func (s *Session) MarkArchived() bool {
	if s.HasArchived {
		return false
	}
	s.HasArchived = true
	return true
}

func (s *Session) actor(handle string) (*Player, error) {
	p := s.playerByHandle(handle)
	if p == nil {
		return nil, apperrors.NotFound("Player")
	}
	return p, nil
}

func (s *Session) requirePlaying(action string) error {
	if s.Status != model.StatusPlaying {
		return apperrors.WrongPhase(action)
	}
	return nil
}

// target resolves a victim by display name for actions aimed at another player.
func (s *Session) target(actor *Player, name string) (*Player, error) {
	if name == "" {
		return nil, apperrors.MissingRequired("target")
	}
	t := s.playerByName(name)
	if t == nil {
		return nil, apperrors.NotFound("Player")
	}
	if t == actor {
		return nil, apperrors.ValidationError("You cannot target yourself")
	}
	return t, nil
}

func decode(payload json.RawMessage, dest any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return apperrors.ValidationError("Malformed payload").WithCause(err)
	}
	return nil
}

// nextQuestion draws, for one player, a question they have not been served
// since their pool was last reset. An exhausted pool is refilled.
func (s *Session) nextQuestion(p *Player) (model.Question, bool) {
	if len(s.Questions) == 0 {
		return model.Question{}, false
	}
	seen := make(map[string]bool, len(p.Seen))
	for _, id := range p.Seen {
		seen[id] = true
	}
	unseen := make([]int, 0, len(s.Questions))
	for i, q := range s.Questions {
		if !seen[q.ID] {
			unseen = append(unseen, i)
		}
	}
	if len(unseen) == 0 {
		p.Seen = p.Seen[:0]
		for i := range s.Questions {
			unseen = append(unseen, i)
		}
	}

	q := s.Questions[unseen[s.deps.Rand.IntN(len(unseen))]]
	p.Seen = append(p.Seen, q.ID)
	p.CurrentQuestion = q.ID
	return q, true
}

func (s *Session) serveQuestion(p *Player) error {
	q, ok := s.nextQuestion(p)
	if !ok {
		return apperrors.NotFound("Question")
	}
	s.toPlayer(p, EventQuestionServed, map[string]any{"question": q.Public()})
	return nil
}

func (s *Session) question(id string) (model.Question, bool) {
	for _, q := range s.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return model.Question{}, false
}

// grade checks an answer against the question currently served to p.
func (s *Session) grade(p *Player, payload json.RawMessage) (bool, error) {
	var req answerPayload
	if err := decode(payload, &req); err != nil {
		return false, err
	}
	if p.CurrentQuestion == "" || req.QuestionID != p.CurrentQuestion {
		return false, apperrors.ValidationError("Answer does not match the current question")
	}
	q, ok := s.question(req.QuestionID)
	if !ok {
		return false, apperrors.NotFound("Question")
	}
	p.CurrentQuestion = ""

	correct := req.Answer == q.CorrectIndex
	if correct {
		p.CorrectCount++
	} else {
		p.IncorrectCount++
	}
	s.toPlayer(p, EventAnswerGraded, map[string]any{
		"questionId":   q.ID,
		"correct":      correct,
		"correctIndex": q.CorrectIndex,
	})
	return correct, nil
}

func (s *Session) standings() []Standing {
	out := make([]Standing, len(s.Players))
	for i, p := range s.Players {
		out[i] = p.standing()
	}
	return out
}

func (s *Session) broadcastRoster() {
	s.toRoom(EventRosterChanged, map[string]any{"players": s.standings()})
}

// Summary is the public description of a session.
type Summary struct {
	Code      string         `json:"code"`
	Mode      model.Mode     `json:"mode"`
	Status    model.Status   `json:"status"`
	Phase     HackPhase      `json:"phase,omitempty"`
	Settings  model.Settings `json:"settings"`
	Players   int            `json:"players"`
	Connected int            `json:"connected"`
	Questions int            `json:"questions"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`
}

func (s *Session) summary() Summary {
	sum := Summary{
		Code:      s.Code,
		Mode:      s.Mode,
		Status:    s.Status,
		Settings:  s.Settings,
		Players:   len(s.Players),
		Questions: len(s.Questions),
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
	}
	for _, p := range s.Players {
		if p.Connected {
			sum.Connected++
		}
	}
	if s.Hack != nil {
		sum.Phase = s.Hack.Phase
	}
	return sum
}

// Summary returns the public description of the session.
func (s *Session) Summary() Summary {
	return s.summary()
}
