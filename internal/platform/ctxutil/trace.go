package ctxutil

import "context"

type traceDataKey struct{}

type TraceData struct {
	TraceID   string
	RequestID string
	// Subject is the authenticated caller, empty on anonymous requests.
	Subject string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(Default(ctx), traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	if td, ok := ctx.Value(traceDataKey{}).(*TraceData); ok {
		return td
	}
	return nil
}

// WithSubject returns ctx carrying a copy of its trace data with Subject
// set. The stored TraceData is never mutated.
func WithSubject(ctx context.Context, subject string) context.Context {
	td := TraceData{}
	if cur := GetTraceData(ctx); cur != nil {
		td = *cur
	}
	td.Subject = subject
	return WithTraceData(ctx, &td)
}

// LogFields returns trace_id/request_id (and subject when known) pairs for
// ctx, or nil when absent.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	fields := []interface{}{"trace_id", td.TraceID, "request_id", td.RequestID}
	if td.Subject != "" {
		fields = append(fields, "subject", td.Subject)
	}
	return fields
}
