package repos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/opensearch"
	"github.com/valyc0/fraudM/internal/platform/retry"
)

const conflictAttempts = 5

// ruleIndexBody is the index definition created when the rules index is
// missing. Opaque result maps are stored but not indexed.
var ruleIndexBody = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"rule_id": map[string]any{"type": "keyword"},
			"name": map[string]any{
				"type":   "text",
				"fields": map[string]any{"keyword": map[string]any{"type": "keyword"}},
			},
			"description":        map[string]any{"type": "text"},
			"artifact":           map[string]any{"type": "text"},
			"status":             map[string]any{"type": "keyword"},
			"created_at":         map[string]any{"type": "date"},
			"updated_at":         map[string]any{"type": "date"},
			"deployed_at":        map[string]any{"type": "date"},
			"version":            map[string]any{"type": "integer"},
			"is_active":          map[string]any{"type": "boolean"},
			"tags":               map[string]any{"type": "keyword"},
			"validation_results": map[string]any{"type": "object", "enabled": false},
			"metrics":            map[string]any{"type": "object", "enabled": false},
		},
	},
}

type openSearchRuleRepo struct {
	client    *opensearch.Client
	index     string
	log       *logger.Logger
	listLimit int
	now       func() time.Time
}

func NewOpenSearchRuleRepo(client *opensearch.Client, baseLog *logger.Logger, limit int) RuleBackend {
	return &openSearchRuleRepo{
		client:    client,
		index:     client.Index(),
		log:       baseLog.With("repo", "OpenSearchRuleRepo", "index", client.Index()),
		listLimit: listLimit(limit),
		now:       time.Now,
	}
}

func (r *openSearchRuleRepo) Name() string { return "opensearch" }

func (r *openSearchRuleRepo) EnsureSchema(ctx context.Context) error {
	exists, err := r.client.IndexExists(ctx, r.index)
	if err != nil {
		return mapSearchError("ensure_schema", err)
	}
	if exists {
		r.log.Debug("Rules index already present")
		return nil
	}
	if err := r.client.CreateIndex(ctx, r.index, ruleIndexBody); err != nil {
		if opensearch.CodeOf(err) == opensearch.OperationErrorAlreadyExists {
			r.log.Info("Rules index created concurrently")
			return nil
		}
		return mapSearchError("ensure_schema", err)
	}
	r.log.Info("Created rules index")
	return nil
}

func (r *openSearchRuleRepo) Store(ctx context.Context, rule *rules.Rule) (*rules.Rule, error) {
	if rule == nil || rule.RuleID == "" {
		return nil, rules.E(rules.KindValidation, "store", "rule id required")
	}
	doc := rule.Clone()
	doc.Normalize()
	if _, err := r.client.IndexDocument(ctx, r.index, doc.RuleID, doc, opensearch.RefreshWaitFor); err != nil {
		return nil, mapSearchError("store", err)
	}
	return doc, nil
}

func (r *openSearchRuleRepo) Get(ctx context.Context, id string) (*rules.Rule, error) {
	out, _, err := r.get(ctx, "get", id)
	return out, err
}

func (r *openSearchRuleRepo) get(ctx context.Context, op, id string) (*rules.Rule, opensearch.DocMeta, error) {
	var out rules.Rule
	meta, err := r.client.GetDocument(ctx, r.index, id, &out)
	if err != nil {
		if opensearch.IsNotFound(err) {
			return nil, meta, rules.E(rules.KindNotFound, op, "rule %s not found", id)
		}
		return nil, meta, mapSearchError(op, err)
	}
	out.Normalize()
	return &out, meta, nil
}

func (r *openSearchRuleRepo) List(ctx context.Context) ([]*rules.Rule, error) {
	query := map[string]any{
		"size":  r.listLimit,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []any{map[string]any{"created_at": map[string]any{"order": "desc"}}},
	}
	hits, err := r.client.Search(ctx, r.index, query)
	if err != nil {
		return nil, mapSearchError("list", err)
	}
	out := make([]*rules.Rule, 0, len(hits))
	for _, h := range hits {
		var rule rules.Rule
		if err := json.Unmarshal(h.Source, &rule); err != nil {
			r.log.Warn("Skipping undecodable rule document", "rule_id", h.ID, "error", err)
			continue
		}
		rule.Normalize()
		out = append(out, &rule)
	}
	return out, nil
}

// Update reads the document with its seq_no, merges fields and writes back
// guarded by that seq_no. A lost race is retried unless the caller pinned
// an expected version.
func (r *openSearchRuleRepo) Update(ctx context.Context, id string, fields rules.RuleFields) (*rules.Rule, error) {
	const op = "update"
	var out *rules.Rule
	err := r.guardedWrite(ctx, op, fields.ExpectedVersion != nil, func() error {
		cur, meta, err := r.get(ctx, op, id)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if err := checkExpectedVersion(op, cur.Version, fields.ExpectedVersion); err != nil {
			return retry.NonRetryable(err)
		}
		fields.Apply(cur, r.now())
		cur.Normalize()
		if _, err := r.client.UpdateDocument(ctx, r.index, id, fieldsDoc(fields, cur), &meta, opensearch.RefreshWaitFor); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *openSearchRuleRepo) UpdateStatus(ctx context.Context, id string, change rules.StatusChange) (*rules.Rule, error) {
	const op = "update_status"
	var out *rules.Rule
	err := r.guardedWrite(ctx, op, change.From != nil, func() error {
		cur, meta, err := r.get(ctx, op, id)
		if err != nil {
			return retry.NonRetryable(err)
		}
		if err := checkFromStatus(op, cur.Status, change.From); err != nil {
			return retry.NonRetryable(err)
		}
		change.Apply(cur, r.now())
		cur.Normalize()
		if _, err := r.client.UpdateDocument(ctx, r.index, id, statusDoc(change, cur), &meta, opensearch.RefreshWaitFor); err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// guardedWrite runs fn, retrying seq_no conflicts with jittered backoff.
// When pinned is set a conflict is reported at once.
func (r *openSearchRuleRepo) guardedWrite(ctx context.Context, op string, pinned bool, fn func() error) error {
	rc := retry.Backoff(conflictAttempts)
	rc.OnFailure = func(attempt int, err error) {
		r.log.Debug("Concurrent rule write, retrying", "op", op, "attempt", attempt, "error", err)
	}
	err := retry.Do(ctx, rc, func() error {
		err := fn()
		if err == nil || retry.IsNonRetryable(err) {
			return err
		}
		if !opensearch.IsConflict(err) {
			return retry.NonRetryable(mapSearchError(op, err))
		}
		if pinned {
			return retry.NonRetryable(rules.Wrap(rules.KindConflict, op, err))
		}
		return err
	})
	if err == nil {
		return nil
	}
	var nr *retry.NonRetryableError
	if errors.As(err, &nr) {
		return nr.Err
	}
	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return rules.Wrap(rules.KindConflict, op, ex)
	}
	return rules.Wrap(rules.KindStore, op, err)
}

func fieldsDoc(f rules.RuleFields, merged *rules.Rule) map[string]any {
	doc := map[string]any{"updated_at": merged.UpdatedAt}
	if f.Name != nil {
		doc["name"] = merged.Name
	}
	if f.Description != nil {
		doc["description"] = merged.Description
	}
	if f.Status != nil {
		doc["status"] = merged.Status
	}
	if f.IsActive != nil {
		doc["is_active"] = merged.IsActive
	}
	if f.Tags != nil {
		doc["tags"] = merged.Tags
	}
	if f.Artifact != nil {
		doc["artifact"] = merged.Artifact
		doc["version"] = merged.Version
	}
	return doc
}

func statusDoc(c rules.StatusChange, merged *rules.Rule) map[string]any {
	doc := map[string]any{
		"status":     merged.Status,
		"updated_at": merged.UpdatedAt,
	}
	if c.To == rules.StatusDeployed {
		doc["deployed_at"] = merged.DeployedAt
	}
	if c.ValidationResults != nil {
		doc["validation_results"] = merged.ValidationResults
	}
	if c.Metrics != nil {
		doc["metrics"] = merged.Metrics
	}
	return doc
}

func (r *openSearchRuleRepo) Delete(ctx context.Context, id string) error {
	if err := r.client.DeleteDocument(ctx, r.index, id, opensearch.RefreshWaitFor); err != nil {
		if opensearch.IsNotFound(err) {
			return rules.E(rules.KindNotFound, "delete", "rule %s not found", id)
		}
		return mapSearchError("delete", err)
	}
	return nil
}

func (r *openSearchRuleRepo) Ping(ctx context.Context) error {
	return mapSearchError("ping", r.client.Ping(ctx))
}

func (r *openSearchRuleRepo) Close() error {
	r.client.Close()
	return nil
}

func mapSearchError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch opensearch.CodeOf(err) {
	case opensearch.OperationErrorNotFound:
		return rules.Wrap(rules.KindNotFound, op, err)
	case opensearch.OperationErrorConflict:
		return rules.Wrap(rules.KindConflict, op, err)
	default:
		return rules.Wrap(rules.KindStore, op, err)
	}
}
