package ctxutil

import (
	"context"
	"testing"
)

func TestTraceDataRoundTrip(t *testing.T) {
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t-1", RequestID: "r-1"})
	td := GetTraceData(ctx)
	if td == nil || td.TraceID != "t-1" || td.RequestID != "r-1" {
		t.Fatalf("GetTraceData: got=%+v", td)
	}
	fields := LogFields(ctx)
	if len(fields) != 4 || fields[1] != "t-1" || fields[3] != "r-1" {
		t.Fatalf("LogFields: got=%v", fields)
	}
}

func TestWithSubjectCopiesTraceData(t *testing.T) {
	orig := &TraceData{TraceID: "t-1", RequestID: "r-1"}
	parent := WithTraceData(context.Background(), orig)
	ctx := WithSubject(parent, "operator")

	td := GetTraceData(ctx)
	if td == nil || td.Subject != "operator" || td.TraceID != "t-1" || td.RequestID != "r-1" {
		t.Fatalf("GetTraceData: got=%+v", td)
	}
	if orig.Subject != "" {
		t.Fatalf("parent trace data mutated: got=%+v", orig)
	}
	fields := LogFields(ctx)
	if len(fields) != 6 || fields[4] != "subject" || fields[5] != "operator" {
		t.Fatalf("LogFields: got=%v", fields)
	}

	bare := GetTraceData(WithSubject(context.Background(), "svc"))
	if bare == nil || bare.Subject != "svc" || bare.TraceID != "" {
		t.Fatalf("WithSubject without trace data: got=%+v", bare)
	}
}

func TestTraceDataAbsent(t *testing.T) {
	if td := GetTraceData(context.Background()); td != nil {
		t.Fatalf("GetTraceData: want nil got=%+v", td)
	}
	if fields := LogFields(nil); fields != nil { //nolint:staticcheck
		t.Fatalf("LogFields(nil): want nil got=%v", fields)
	}
}
