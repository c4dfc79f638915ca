package repos

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/valyc0/fraudM/internal/domain/rules"
)

// mapSQLError classifies gorm/driver failures into rule error kinds.
func mapSQLError(op string, err error) error {
	if err == nil {
		return nil
	}
	if rules.KindOf(err) != rules.KindUnknown {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return rules.Wrap(rules.KindNotFound, op, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return rules.Wrap(rules.KindStore, op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch strings.TrimSpace(pgErr.Code) {
		case "23505", "40001", "40P01":
			return rules.Wrap(rules.KindConflict, op, err) // unique_violation/serialization/deadlock
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "unique constraint"):
		return rules.Wrap(rules.KindConflict, op, err)
	default:
		return rules.Wrap(rules.KindStore, op, err)
	}
}
