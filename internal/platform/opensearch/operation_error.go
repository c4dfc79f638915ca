package opensearch

import (
	"errors"
	"fmt"
)

type OperationErrorCode string

const (
	OperationErrorEncodeFailed    OperationErrorCode = "encode_failed"
	OperationErrorDecodeFailed    OperationErrorCode = "decode_failed"
	OperationErrorTransportFailed OperationErrorCode = "transport_failed"
	OperationErrorTimeout         OperationErrorCode = "timeout"
	OperationErrorNotFound        OperationErrorCode = "not_found"
	OperationErrorConflict        OperationErrorCode = "version_conflict"
	OperationErrorAlreadyExists   OperationErrorCode = "already_exists"
	OperationErrorUnauthorized    OperationErrorCode = "unauthorized"
	OperationErrorRequestFailed   OperationErrorCode = "request_failed"
)

type OperationError struct {
	Code       OperationErrorCode
	Operation  string
	StatusCode int
	// Type is the server-reported error type, e.g. version_conflict_engine_exception.
	Type    string
	Message string
	Cause   error
}

func (e *OperationError) Error() string {
	if e == nil {
		return "opensearch operation failed"
	}
	detail := e.Message
	if detail == "" && e.Cause != nil {
		detail = e.Cause.Error()
	}
	if detail == "" {
		return fmt.Sprintf("opensearch operation failed (op=%s code=%s status=%d)", e.Operation, e.Code, e.StatusCode)
	}
	return fmt.Sprintf("opensearch operation failed (op=%s code=%s status=%d): %s", e.Operation, e.Code, e.StatusCode, detail)
}

func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func opErr(op string, code OperationErrorCode, msg string, cause error) error {
	return &OperationError{
		Code:      code,
		Operation: op,
		Message:   msg,
		Cause:     cause,
	}
}

// CodeOf returns the operation code carried by err, or "" for foreign errors.
func CodeOf(err error) OperationErrorCode {
	var oe *OperationError
	if errors.As(err, &oe) && oe != nil {
		return oe.Code
	}
	return ""
}

func IsNotFound(err error) bool { return CodeOf(err) == OperationErrorNotFound }
func IsConflict(err error) bool { return CodeOf(err) == OperationErrorConflict }
