package generator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valyc0/fraudM/internal/platform/logger"
)

var archiveClock = time.Date(2025, 3, 1, 12, 30, 45, 0, time.UTC)

func fixedArchive(t *testing.T) *Archive {
	t.Helper()
	a := NewArchive(t.TempDir())
	a.now = func() time.Time { return archiveClock }
	return a
}

func TestReindentBraces(t *testing.T) {
	in := "object Job {\n      def main(args: Array[String]): Unit = {\nval env = 1\n    }\n}"
	want := "object Job {\n  def main(args: Array[String]): Unit = {\n    val env = 1\n  }\n}"
	if got := ReindentBraces(in); got != want {
		t.Fatalf("ReindentBraces:\nwant=%q\ngot =%q", want, got)
	}
	// A stray closing brace never drives the depth negative.
	if got := ReindentBraces("}\nx"); got != "}\nx" {
		t.Fatalf("unbalanced: got=%q", got)
	}
}

func TestGenerateScalaIsReindented(t *testing.T) {
	raw := "```scala\nimport org.apache.flink.streaming.api._\nobject Job {\n        val x = 1\n}\n```"
	g, _ := New(logger.NewNop(), "gemini", &stubLLM{out: raw}, mustProfile(t, "flink_scala"))
	out, err := g.Generate(context.Background(), Request{Description: "d", RuleName: "r"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	want := "import org.apache.flink.streaming.api._\nobject Job {\n  val x = 1\n}"
	if out != want {
		t.Fatalf("artifact:\nwant=%q\ngot =%q", want, out)
	}

	// SQL artifacts keep the model's layout.
	sql := "INSERT INTO call_alerts\n    SELECT 'velocity' AS rule_name"
	g, _ = New(logger.NewNop(), "gemini", &stubLLM{out: sql}, mustProfile(t, "flink_sql"))
	if out, _ := g.Generate(context.Background(), Request{Description: "d", RuleName: "velocity"}); out != sql {
		t.Fatalf("sql artifact changed: %q", out)
	}
}

func TestParseProfilesRejectsUnknownFormat(t *testing.T) {
	_, err := ParseProfiles([]byte("profiles:\n  x:\n    system: s\n    format: tabs\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("want unknown format error, got %v", err)
	}
}

func TestArchiveScalaNaming(t *testing.T) {
	a := fixedArchive(t)
	p := mustProfile(t, "flink_scala")
	path, err := a.Save(p, Request{Description: "caller dials more-than ten numbers", RuleName: "velocity"}, "object Job")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(a.Dir(), "scala", "RuleCallerDialsMorethanTen.scala"); path != want {
		t.Fatalf("path: want=%q got=%q", want, path)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := "// Rule: velocity\n// Generated at 2025-03-01 12:30:45\n// Description: caller dials more-than ten numbers\n\nobject Job\n"
	if string(body) != want {
		t.Fatalf("body:\nwant=%q\ngot =%q", want, string(body))
	}
}

func TestArchiveSQLNaming(t *testing.T) {
	a := fixedArchive(t)
	path, err := a.Save(mustProfile(t, "flink_sql"), Request{Description: "d", RuleName: "Velocity Check!"}, "INSERT INTO call_alerts")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if want := filepath.Join(a.Dir(), "sql-rules", "velocity_check_20250301123045.sql"); path != want {
		t.Fatalf("path: want=%q got=%q", want, path)
	}
	body, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(body), "-- Rule: Velocity Check!\n") {
		t.Fatalf("sql header: got=%q", string(body))
	}
}

func TestGenerateArchivesAcceptedArtifactsOnly(t *testing.T) {
	a := fixedArchive(t)
	p := mustProfile(t, "flink_sql")
	ok := "INSERT INTO call_alerts SELECT 'velocity' AS rule_name"
	g, _ := New(logger.NewNop(), "openai", &stubLLM{out: ok}, p, WithArchive(a))
	if _, err := g.Generate(context.Background(), Request{Description: "d", RuleName: "velocity"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bad, _ := New(logger.NewNop(), "openai", &stubLLM{out: "SELECT 1"}, p, WithArchive(a))
	if _, err := bad.Generate(context.Background(), Request{Description: "d", RuleName: "other"}); err == nil {
		t.Fatalf("Generate: want rejection")
	}

	entries, err := os.ReadDir(filepath.Join(a.Dir(), "sql-rules"))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "velocity_20250301123045.sql" {
		t.Fatalf("archived files: got=%v", entries)
	}
}

func TestGenerateSurvivesArchiveFailure(t *testing.T) {
	// A regular file where the archive directory should be makes every write fail.
	blocker := filepath.Join(t.TempDir(), "archive")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	ok := "INSERT INTO call_alerts SELECT 'velocity' AS rule_name"
	g, _ := New(logger.NewNop(), "openai", &stubLLM{out: ok}, mustProfile(t, "flink_sql"), WithArchive(NewArchive(blocker)))
	out, err := g.Generate(context.Background(), Request{Description: "d", RuleName: "velocity"})
	if err != nil || out != ok {
		t.Fatalf("Generate: want artifact despite archive failure got=%q err=%v", out, err)
	}
}
