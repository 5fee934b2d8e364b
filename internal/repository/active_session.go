package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/quizblitz/live-server/internal/game"
	redisclient "github.com/quizblitz/live-server/internal/redis"
)

// ActiveSessionRepository keeps the latest snapshot of every live session so
// a restarted process can pick them back up.
type ActiveSessionRepository interface {
	Save(ctx context.Context, snap game.Snapshot) error
	Delete(ctx context.Context, code string) error
	// List returns every readable snapshot. Records that fail to decode are
	// logged and skipped.
	List(ctx context.Context) ([]game.Snapshot, error)
}

type activeSessionRepo struct {
	client redis.Cmdable
}

func NewActiveSessionRepository(client redis.Cmdable) ActiveSessionRepository {
	return &activeSessionRepo{client: client}
}

func (r *activeSessionRepo) Save(ctx context.Context, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", snap.Code, err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, redisclient.SessionKey(snap.Code), data, 0)
		pipe.SAdd(ctx, redisclient.ActiveSessionsKey, snap.Code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.Code, err)
	}
	return nil
}

func (r *activeSessionRepo) Delete(ctx context.Context, code string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisclient.SessionKey(code))
		pipe.SRem(ctx, redisclient.ActiveSessionsKey, code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", code, err)
	}
	return nil
}

func (r *activeSessionRepo) List(ctx context.Context) ([]game.Snapshot, error) {
	codes, err := r.client.SMembers(ctx, redisclient.ActiveSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	if len(codes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = redisclient.SessionKey(code)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load active sessions: %w", err)
	}

	snapshots := make([]game.Snapshot, 0, len(values))
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			log.Warn().Str("code", codes[i]).Msg("active session listed without a snapshot")
			continue
		}
		var snap game.Snapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			log.Error().Err(err).Str("code", codes[i]).Msg("failed to decode session snapshot")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}
