package repos

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/sqlstore"
)

type sqlRuleRepo struct {
	db        *gorm.DB
	log       *logger.Logger
	name      string
	listLimit int
	now       func() time.Time
}

// NewSQLRuleRepo stores rules in the "rules" table of db (postgres or
// sqlite).
func NewSQLRuleRepo(db *gorm.DB, baseLog *logger.Logger, name string, limit int) RuleBackend {
	return &sqlRuleRepo{
		db:        db,
		log:       baseLog.With("repo", "SQLRuleRepo", "backend", name),
		name:      name,
		listLimit: listLimit(limit),
		now:       time.Now,
	}
}

func (r *sqlRuleRepo) Name() string { return r.name }

func (r *sqlRuleRepo) EnsureSchema(ctx context.Context) error {
	m := r.db.WithContext(ctx).Migrator()
	if m.HasTable(&rules.Rule{}) {
		r.log.Debug("Rules table already present")
		return nil
	}
	if err := m.CreateTable(&rules.Rule{}); err != nil {
		if m.HasTable(&rules.Rule{}) {
			return nil
		}
		return mapSQLError("ensure_schema", err)
	}
	r.log.Info("Created rules table")
	return nil
}

func (r *sqlRuleRepo) Store(ctx context.Context, rule *rules.Rule) (*rules.Rule, error) {
	if rule == nil || rule.RuleID == "" {
		return nil, rules.E(rules.KindValidation, "store", "rule id required")
	}
	row := rule.Clone()
	row.Normalize()
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, mapSQLError("store", err)
	}
	return row, nil
}

func (r *sqlRuleRepo) Get(ctx context.Context, id string) (*rules.Rule, error) {
	out, err := r.take(r.db.WithContext(ctx), id)
	if err != nil {
		return nil, mapSQLError("get", err)
	}
	return out, nil
}

func (r *sqlRuleRepo) take(tx *gorm.DB, id string) (*rules.Rule, error) {
	var out rules.Rule
	if err := tx.Where("rule_id = ?", id).Take(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, rules.E(rules.KindNotFound, "get", "rule %s not found", id)
		}
		return nil, err
	}
	out.Normalize()
	return &out, nil
}

func (r *sqlRuleRepo) List(ctx context.Context) ([]*rules.Rule, error) {
	var out []*rules.Rule
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(r.listLimit).
		Find(&out).Error; err != nil {
		return nil, mapSQLError("list", err)
	}
	for _, rule := range out {
		rule.Normalize()
	}
	return out, nil
}

func (r *sqlRuleRepo) Update(ctx context.Context, id string, fields rules.RuleFields) (*rules.Rule, error) {
	const op = "update"
	updates := map[string]interface{}{"updated_at": rules.Timestamp(r.now())}
	if fields.Name != nil {
		updates["name"] = *fields.Name
	}
	if fields.Description != nil {
		updates["description"] = *fields.Description
	}
	if fields.Status != nil {
		updates["status"] = *fields.Status
	}
	if fields.IsActive != nil {
		updates["is_active"] = *fields.IsActive
	}
	if fields.Tags != nil {
		updates["tags"] = datatypes.JSONSlice[string](append([]string{}, (*fields.Tags)...))
	}
	if fields.Artifact != nil {
		updates["artifact"] = *fields.Artifact
		updates["version"] = gorm.Expr("version + 1")
	}

	var out *rules.Rule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.take(tx, id)
		if err != nil {
			return err
		}
		if err := checkExpectedVersion(op, cur.Version, fields.ExpectedVersion); err != nil {
			return err
		}
		q := tx.Model(&rules.Rule{}).Where("rule_id = ?", id)
		if fields.ExpectedVersion != nil {
			q = q.Where("version = ?", *fields.ExpectedVersion)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return rules.E(rules.KindConflict, op, "rule %s changed concurrently", id)
		}
		out, err = r.take(tx, id)
		return err
	})
	if err != nil {
		return nil, mapSQLError(op, err)
	}
	return out, nil
}

func (r *sqlRuleRepo) UpdateStatus(ctx context.Context, id string, change rules.StatusChange) (*rules.Rule, error) {
	const op = "update_status"
	ts := rules.Timestamp(r.now())
	updates := map[string]interface{}{
		"status":     change.To,
		"updated_at": ts,
	}
	if change.To == rules.StatusDeployed {
		updates["deployed_at"] = ts
	}
	if change.ValidationResults != nil {
		updates["validation_results"] = datatypes.JSONMap(change.ValidationResults)
	}
	if change.Metrics != nil {
		updates["metrics"] = datatypes.JSONMap(change.Metrics)
	}

	var out *rules.Rule
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := r.take(tx, id)
		if err != nil {
			return err
		}
		if err := checkFromStatus(op, cur.Status, change.From); err != nil {
			return err
		}
		q := tx.Model(&rules.Rule{}).Where("rule_id = ?", id)
		if change.From != nil {
			q = q.Where("status = ?", *change.From)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return rules.E(rules.KindConflict, op, "rule %s changed concurrently", id)
		}
		out, err = r.take(tx, id)
		return err
	})
	if err != nil {
		return nil, mapSQLError(op, err)
	}
	return out, nil
}

func (r *sqlRuleRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("rule_id = ?", id).Delete(&rules.Rule{})
	if res.Error != nil {
		return mapSQLError("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return rules.E(rules.KindNotFound, "delete", "rule %s not found", id)
	}
	return nil
}

func (r *sqlRuleRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return mapSQLError("ping", err)
	}
	return mapSQLError("ping", sqlDB.PingContext(ctx))
}

func (r *sqlRuleRepo) Close() error {
	return sqlstore.Close(r.db)
}
