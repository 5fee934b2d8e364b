package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/quizblitz/live-server/internal/database"
	"github.com/quizblitz/live-server/internal/model"
)

// ContentRepository reads question sets. Sets are authored elsewhere.
type ContentRepository interface {
	FindByID(ctx context.Context, id string) (*model.ContentSet, error)
}

type contentRepo struct {
	db database.DBTX
}

func NewContentRepository(db *sqlx.DB) ContentRepository {
	return &contentRepo{db: db}
}

type contentRow struct {
	ID        string `db:"id"`
	OwnerID   string `db:"owner_id"`
	Title     string `db:"title"`
	Questions []byte `db:"questions"`
}

func (r *contentRepo) FindByID(ctx context.Context, id string) (*model.ContentSet, error) {
	var row contentRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, owner_id, title, questions FROM question_sets WHERE id = $1
	`, id)
	found, err := optionalRow(&row, err)
	if err != nil || found == nil {
		return nil, err
	}

	set := &model.ContentSet{ID: row.ID, OwnerID: row.OwnerID, Title: row.Title}
	if err := json.Unmarshal(row.Questions, &set.Questions); err != nil {
		return nil, fmt.Errorf("decode questions of %s: %w", id, err)
	}
	return set, nil
}
