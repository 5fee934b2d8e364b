package repository

import (
	"database/sql"
	"errors"
)

// optionalRow turns a single-row lookup into (nil, nil) when nothing matched,
// so callers can tell a missing content set from a failed query.
func optionalRow[T any](row *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	}
	return row, nil
}
