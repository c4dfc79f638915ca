package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/valyc0/fraudM/internal/domain/rules"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

const (
	CodeValidation        = "validation_error"
	CodeInvalidTransition = "invalid_transition"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeGenerationFailed  = "generation_failed"
	CodeStoreFailed       = "store_failed"
	CodeNotReady          = "not_ready"
	CodeUnauthorized      = "unauthorized"
	CodeInternal          = "internal_error"
)

var kindStatus = map[rules.Kind]struct {
	status int
	code   string
}{
	rules.KindValidation:        {http.StatusBadRequest, CodeValidation},
	rules.KindInvalidTransition: {http.StatusBadRequest, CodeInvalidTransition},
	rules.KindNotFound:          {http.StatusNotFound, CodeNotFound},
	rules.KindConflict:          {http.StatusConflict, CodeConflict},
	rules.KindGeneration:        {http.StatusInternalServerError, CodeGenerationFailed},
	rules.KindStore:             {http.StatusInternalServerError, CodeStoreFailed},
	rules.KindNotReady:          {http.StatusServiceUnavailable, CodeNotReady},
}

// FromError maps err to a transport error. An *Error already in the chain
// wins; otherwise the rule kind decides.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return FromKind(rules.KindOf(err), err)
}

func FromKind(kind rules.Kind, err error) *Error {
	if m, ok := kindStatus[kind]; ok {
		return New(m.status, m.code, err)
	}
	return New(http.StatusInternalServerError, CodeInternal, err)
}
