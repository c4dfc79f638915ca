package repos

import (
	"context"
	"errors"

	"github.com/valyc0/fraudM/internal/domain/rules"
)

// ErrConnectionFailed marks a backend that could not be reached within the
// connect retry budget.
var ErrConnectionFailed = errors.New("store connection failed")

const DefaultListLimit = 100

// RuleRepo persists rules. Every write is visible to the next read.
type RuleRepo interface {
	Store(ctx context.Context, rule *rules.Rule) (*rules.Rule, error)
	Get(ctx context.Context, id string) (*rules.Rule, error)
	List(ctx context.Context) ([]*rules.Rule, error)
	Update(ctx context.Context, id string, fields rules.RuleFields) (*rules.Rule, error)
	UpdateStatus(ctx context.Context, id string, change rules.StatusChange) (*rules.Rule, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// RuleBackend is a RuleRepo bound to a concrete store.
type RuleBackend interface {
	RuleRepo
	Name() string
	EnsureSchema(ctx context.Context) error
	Close() error
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}

func checkExpectedVersion(op string, current int, expected *int) error {
	if expected != nil && *expected != current {
		return rules.E(rules.KindConflict, op, "version is %d, expected %d", current, *expected)
	}
	return nil
}

func checkFromStatus(op string, current rules.Status, from *rules.Status) error {
	if from != nil && *from != current {
		return rules.E(rules.KindConflict, op, "status is %s, expected %s", current, *from)
	}
	return nil
}
