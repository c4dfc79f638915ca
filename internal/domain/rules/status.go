package rules

import "strings"

type Status string

const (
	StatusCreated    Status = "created"
	StatusValidating Status = "validating"
	StatusValidated  Status = "validated"
	StatusDeploying  Status = "deploying"
	StatusDeployed   Status = "deployed"
	StatusError      Status = "error"
	StatusInactive   Status = "inactive"
)

var transitions = map[Status][]Status{
	StatusCreated:    {StatusValidating, StatusError},
	StatusValidating: {StatusValidated, StatusError},
	StatusValidated:  {StatusDeploying, StatusError},
	StatusDeploying:  {StatusDeployed, StatusError},
	StatusDeployed:   {StatusInactive, StatusError},
	StatusInactive:   {StatusDeploying, StatusError},
	StatusError:      nil,
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next lists the statuses reachable from s in one step.
func Next(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", E(KindValidation, "parse_status", "unknown status %q", raw)
	}
	return s, nil
}
