package promptstyle

import (
	"strings"
	"testing"
)

func TestApplySystem(t *testing.T) {
	got := ApplySystem("  Generate Flink SQL.\nCREATE TABLE calls_stream (...);", "sql")
	if !strings.HasPrefix(got, marker) {
		t.Fatalf("missing marker: %q", got)
	}
	if !strings.Contains(got, "Task summary: Generate Flink SQL.") || !strings.Contains(got, "Output only sql source code") {
		t.Fatalf("missing guidance: %q", got)
	}
	if !strings.HasSuffix(got, "CREATE TABLE calls_stream (...);") {
		t.Fatalf("original prompt not kept at the end: %q", got)
	}
	if again := ApplySystem(got, "sql"); again != got {
		t.Fatalf("ApplySystem is not idempotent")
	}
	if ApplySystem("   ", "sql") != "" {
		t.Fatalf("blank prompt should stay blank")
	}
}
