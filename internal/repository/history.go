package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizblitz/live-server/internal/database"
	"github.com/quizblitz/live-server/internal/model"
)

// HistoryRepository is the append-only store of finished games.
type HistoryRepository interface {
	Create(ctx context.Context, record model.HistoryRecord) (*model.HistoryRecord, error)
	ListByHost(ctx context.Context, hostID string, limit int) ([]model.HistoryRecord, error)
	WithTx(tx *sqlx.Tx) HistoryRepository
}

type historyRepo struct {
	db database.DBTX
}

func NewHistoryRepository(db *sqlx.DB) HistoryRepository {
	return &historyRepo{db: db}
}

func (r *historyRepo) WithTx(tx *sqlx.Tx) HistoryRepository {
	return &historyRepo{db: tx}
}

type historyRow struct {
	ID        string     `db:"id"`
	HostID    string     `db:"host_id"`
	Mode      string     `db:"mode"`
	Code      string     `db:"code"`
	StartedAt *time.Time `db:"started_at"`
	EndedAt   time.Time  `db:"ended_at"`
	Settings  []byte     `db:"settings"`
	Roster    []byte     `db:"roster"`
}

func (row historyRow) record() (model.HistoryRecord, error) {
	record := model.HistoryRecord{
		ID:        row.ID,
		HostID:    row.HostID,
		Mode:      model.Mode(row.Mode),
		Code:      row.Code,
		StartedAt: row.StartedAt,
		EndedAt:   row.EndedAt,
	}
	if err := json.Unmarshal(row.Settings, &record.Settings); err != nil {
		return record, fmt.Errorf("decode settings of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal(row.Roster, &record.Roster); err != nil {
		return record, fmt.Errorf("decode roster of %s: %w", row.ID, err)
	}
	return record, nil
}

func (r *historyRepo) Create(ctx context.Context, record model.HistoryRecord) (*model.HistoryRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	settings, err := json.Marshal(record.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	roster, err := json.Marshal(record.Roster)
	if err != nil {
		return nil, fmt.Errorf("encode roster: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO game_history (id, host_id, mode, code, started_at, ended_at, settings, roster)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.ID, record.HostID, record.Mode, record.Code, record.StartedAt, record.EndedAt, settings, roster)
	if err != nil {
		return nil, fmt.Errorf("insert history %s: %w", record.Code, err)
	}
	return &record, nil
}

func (r *historyRepo) ListByHost(ctx context.Context, hostID string, limit int) ([]model.HistoryRecord, error) {
	var rows []historyRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, host_id, mode, code, started_at, ended_at, settings, roster
		FROM game_history
		WHERE host_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`, hostID, limit)
	if err != nil {
		return nil, err
	}

	records := make([]model.HistoryRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
