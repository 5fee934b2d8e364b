package service

import (
	"context"

	"github.com/rs/zerolog/log"

	apperrors "github.com/quizblitz/live-server/internal/errors"
	"github.com/quizblitz/live-server/internal/game"
	"github.com/quizblitz/live-server/internal/model"
	"github.com/quizblitz/live-server/internal/registry"
	"github.com/quizblitz/live-server/internal/repository"
)

const (
	defaultTimeLimitMinutes = 10
	maxTimeLimitMinutes     = 120
	minQuestionOptions      = 2

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// SessionCreator is satisfied by *registry.Registry.
type SessionCreator interface {
	Create(ctx context.Context, params registry.CreateParams) (game.Summary, error)
}

type StartHostingInput struct {
	Mode         model.Mode     `json:"mode"`
	ContentSetID string         `json:"contentSetId"`
	Settings     model.Settings `json:"settings"`
}

type HostingService struct {
	content  repository.ContentRepository
	history  repository.HistoryRepository
	sessions SessionCreator
}

func NewHostingService(
	content repository.ContentRepository,
	history repository.HistoryRepository,
	sessions SessionCreator,
) *HostingService {
	return &HostingService{
		content:  content,
		history:  history,
		sessions: sessions,
	}
}

// StartHosting loads the content set, snapshots its questions into a new
// session and returns the session summary with its join code.
func (s *HostingService) StartHosting(ctx context.Context, hostID string, input StartHostingInput) (game.Summary, error) {
	if !input.Mode.Valid() {
		return game.Summary{}, apperrors.InvalidInput("mode", "must be gold_quest or crypto_hack")
	}
	if input.ContentSetID == "" {
		return game.Summary{}, apperrors.MissingRequired("contentSetId")
	}

	settings, err := normalizeSettings(input.Settings)
	if err != nil {
		return game.Summary{}, err
	}

	set, err := s.content.FindByID(ctx, input.ContentSetID)
	if err != nil {
		return game.Summary{}, apperrors.Database(err)
	}
	if set == nil {
		return game.Summary{}, apperrors.NotFound("Content set")
	}
	if err := validateQuestions(set.Questions); err != nil {
		return game.Summary{}, err
	}

	summary, err := s.sessions.Create(ctx, registry.CreateParams{
		Mode:         input.Mode,
		HostID:       hostID,
		ContentSetID: set.ID,
		Settings:     settings,
		Questions:    set.Questions,
	})
	if err != nil {
		return game.Summary{}, err
	}

	log.Info().
		Str("code", summary.Code).
		Str("hostId", hostID).
		Str("mode", string(input.Mode)).
		Str("contentSetId", set.ID).
		Msg("hosting started")

	return summary, nil
}

// History returns the host's most recent finished games.
func (s *HostingService) History(ctx context.Context, hostID string, limit int) ([]model.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	records, err := s.history.ListByHost(ctx, hostID, limit)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return records, nil
}

func normalizeSettings(settings model.Settings) (model.Settings, error) {
	if settings.WinCondition == "" {
		settings.WinCondition = model.WinByTime
	}

	switch settings.WinCondition {
	case model.WinByTime:
		if settings.TimeLimitMinutes == 0 {
			settings.TimeLimitMinutes = defaultTimeLimitMinutes
		}
		if settings.TimeLimitMinutes < 1 || settings.TimeLimitMinutes > maxTimeLimitMinutes {
			return settings, apperrors.InvalidInput("settings.timeLimitMinutes", "must be between 1 and 120")
		}
	case model.WinByGoal:
		if settings.Goal <= 0 {
			return settings, apperrors.InvalidInput("settings.goal", "must be positive")
		}
	default:
		return settings, apperrors.InvalidInput("settings.winCondition", "must be time or goal")
	}

	return settings, nil
}

func validateQuestions(questions []model.Question) error {
	if len(questions) == 0 {
		return apperrors.ValidationError("Content set has no questions")
	}

	seen := make(map[string]bool, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return apperrors.ValidationError("Content set has a question without an id")
		}
		if seen[q.ID] {
			return apperrors.ValidationError("Content set repeats question " + q.ID)
		}
		seen[q.ID] = true

		if len(q.Options) < minQuestionOptions {
			return apperrors.ValidationError("Question " + q.ID + " needs at least two options")
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
			return apperrors.ValidationError("Question " + q.ID + " has no valid correct option")
		}
	}
	return nil
}
