package rules

import (
	"time"

	"gorm.io/datatypes"
)

// Rule is one fraud-detection rule: a natural-language description, the
// artifact generated from it and the lifecycle bookkeeping around both.
type Rule struct {
	RuleID            string                      `gorm:"column:rule_id;primaryKey;size:64" json:"rule_id"`
	Name              string                      `gorm:"column:name;not null" json:"name"`
	Description       string                      `gorm:"column:description;not null" json:"description"`
	Artifact          string                      `gorm:"column:artifact" json:"artifact"`
	Status            Status                      `gorm:"column:status;not null;index;size:32" json:"status"`
	Version           int                         `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt         time.Time                   `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"created_at"`
	UpdatedAt         time.Time                   `gorm:"column:updated_at;not null;autoUpdateTime:false" json:"updated_at"`
	DeployedAt        *time.Time                  `gorm:"column:deployed_at" json:"deployed_at,omitempty"`
	IsActive          bool                        `gorm:"column:is_active;not null;default:false" json:"is_active"`
	Tags              datatypes.JSONSlice[string] `gorm:"column:tags" json:"tags"`
	ValidationResults datatypes.JSONMap           `gorm:"column:validation_results" json:"validation_results,omitempty"`
	Metrics           datatypes.JSONMap           `gorm:"column:metrics" json:"metrics,omitempty"`
}

func (Rule) TableName() string { return "rules" }

// Normalize puts every timestamp in UTC at millisecond precision, the
// resolution every backend can round-trip. Empty collections become nil
// so a stored [] and a stored null read back the same way.
func (r *Rule) Normalize() {
	if r == nil {
		return
	}
	if len(r.Tags) == 0 {
		r.Tags = nil
	}
	if len(r.ValidationResults) == 0 {
		r.ValidationResults = nil
	}
	if len(r.Metrics) == 0 {
		r.Metrics = nil
	}
	r.CreatedAt = Timestamp(r.CreatedAt)
	r.UpdatedAt = Timestamp(r.UpdatedAt)
	if r.DeployedAt != nil {
		t := Timestamp(*r.DeployedAt)
		r.DeployedAt = &t
	}
}

// Clone returns a deep copy.
func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	out := *r
	if r.DeployedAt != nil {
		t := *r.DeployedAt
		out.DeployedAt = &t
	}
	if r.Tags != nil {
		out.Tags = append(datatypes.JSONSlice[string]{}, r.Tags...)
	}
	out.ValidationResults = cloneMap(r.ValidationResults)
	out.Metrics = cloneMap(r.Metrics)
	return &out
}

func cloneMap(in datatypes.JSONMap) datatypes.JSONMap {
	if in == nil {
		return nil
	}
	out := make(datatypes.JSONMap, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Timestamp truncates t to milliseconds in UTC.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// RuleFields is a partial update. Nil fields are left untouched. Setting
// Artifact bumps the version in the same write.
type RuleFields struct {
	Name        *string
	Description *string
	Artifact    *string
	Status      *Status
	IsActive    *bool
	Tags        *[]string

	// ExpectedVersion makes the update conditional on the stored version.
	ExpectedVersion *int
}

// Empty reports whether no field would change.
func (f RuleFields) Empty() bool {
	return f.Name == nil && f.Description == nil && f.Artifact == nil &&
		f.Status == nil && f.IsActive == nil && f.Tags == nil
}

// StatusChange is the input of the status-only write path.
type StatusChange struct {
	To Status
	// From, when set, must equal the stored status for the write to apply.
	From              *Status
	ValidationResults map[string]interface{}
	Metrics           map[string]interface{}
}

// Apply merges f into r in memory. A supplied artifact bumps the version.
func (f RuleFields) Apply(r *Rule, now time.Time) {
	if f.Name != nil {
		r.Name = *f.Name
	}
	if f.Description != nil {
		r.Description = *f.Description
	}
	if f.Status != nil {
		r.Status = *f.Status
	}
	if f.IsActive != nil {
		r.IsActive = *f.IsActive
	}
	if f.Tags != nil {
		r.Tags = append(datatypes.JSONSlice[string]{}, (*f.Tags)...)
	}
	if f.Artifact != nil {
		r.Artifact = *f.Artifact
		r.Version++
	}
	r.UpdatedAt = Timestamp(now)
}

// Apply merges c into r in memory.
func (c StatusChange) Apply(r *Rule, now time.Time) {
	ts := Timestamp(now)
	r.Status = c.To
	r.UpdatedAt = ts
	if c.To == StatusDeployed {
		r.DeployedAt = &ts
	}
	if c.ValidationResults != nil {
		r.ValidationResults = datatypes.JSONMap(c.ValidationResults)
	}
	if c.Metrics != nil {
		r.Metrics = datatypes.JSONMap(c.Metrics)
	}
}

// EventType names a lifecycle event published after a successful write.
type EventType string

const (
	EventCreated       EventType = "rule.created"
	EventUpdated       EventType = "rule.updated"
	EventStatusChanged EventType = "rule.status_changed"
	EventDeployed      EventType = "rule.deployed"
	EventDeleted       EventType = "rule.deleted"
)

type Event struct {
	Type    EventType `json:"type"`
	RuleID  string    `json:"rule_id"`
	Version int       `json:"version,omitempty"`
	Status  Status    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// NewEvent builds an event for r. r may be nil for deletions.
func NewEvent(typ EventType, ruleID string, r *Rule, at time.Time) Event {
	ev := Event{Type: typ, RuleID: ruleID, At: Timestamp(at)}
	if r != nil {
		ev.Version = r.Version
		ev.Status = r.Status
	}
	return ev
}
