package repos

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"

	"github.com/valyc0/fraudM/internal/domain/rules"
	"github.com/valyc0/fraudM/internal/platform/logger"
	"github.com/valyc0/fraudM/internal/platform/opensearch"
	"github.com/valyc0/fraudM/internal/platform/sqlstore"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ n atomic.Int64 }

// now advances one second per call so every write gets a distinct time.
func (c *clock) now() time.Time {
	return base.Add(time.Duration(c.n.Add(1)) * time.Second)
}

type backendFactory func(t *testing.T, limit int, now func() time.Time) RuleBackend

var sqliteSeq atomic.Int64

func newSQLiteBackend(t *testing.T, limit int, now func() time.Time) RuleBackend {
	t.Helper()
	cfg := sqlstore.Config{
		Driver:          sqlstore.DriverSQLite,
		SQLitePath:      "file:repos_" + strconv.FormatInt(sqliteSeq.Add(1), 10) + "?mode=memory&cache=shared",
		ConnectAttempts: 1,
		ConnectDelay:    time.Millisecond,
	}
	db, err := sqlstore.Connect(context.Background(), logger.NewNop(), cfg)
	if err != nil {
		t.Fatalf("sqlstore.Connect: %v", err)
	}
	repo := NewSQLRuleRepo(db, logger.NewNop(), "sqlite", limit)
	repo.(*sqlRuleRepo).now = now
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func openSearchConfig(t *testing.T, rawURL string) opensearch.Config {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse server url: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)
	return opensearch.Config{
		Host:            host,
		Port:            port,
		Index:           "rules",
		ConnectAttempts: 1,
		ConnectDelay:    time.Millisecond,
		RequestTimeout:  5 * time.Second,
	}
}

func newOpenSearchBackendWithFake(t *testing.T, limit int, now func() time.Time) (RuleBackend, *fakeOpenSearch) {
	t.Helper()
	fake, srv := newFakeOpenSearch(t, "rules")
	client, err := opensearch.Connect(context.Background(), logger.NewNop(), openSearchConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("opensearch.Connect: %v", err)
	}
	repo := NewOpenSearchRuleRepo(client, logger.NewNop(), limit)
	repo.(*openSearchRuleRepo).now = now
	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo, fake
}

func newOpenSearchBackend(t *testing.T, limit int, now func() time.Time) RuleBackend {
	repo, _ := newOpenSearchBackendWithFake(t, limit, now)
	return repo
}

var backends = map[string]backendFactory{
	"sqlite":     newSQLiteBackend,
	"opensearch": newOpenSearchBackend,
}

func sampleRule(id string, createdAt time.Time) *rules.Rule {
	return &rules.Rule{
		RuleID:            id,
		Name:              "velocity_" + id,
		Description:       "more than ten calls per minute from one caller",
		Artifact:          "INSERT INTO call_alerts SELECT 1",
		Status:            rules.StatusCreated,
		Version:           1,
		CreatedAt:         createdAt,
		UpdatedAt:         createdAt,
		Tags:              datatypes.JSONSlice[string]{"velocity", "calls"},
		ValidationResults: datatypes.JSONMap{"ok": true, "score": 0.5},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, newRepo backendFactory)) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) { fn(t, factory) })
	}
}

func TestStoreGetRoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		c := &clock{}
		repo := newRepo(t, 0, c.now)
		ctx := context.Background()

		in := sampleRule("r-1", base.Add(123*time.Millisecond+456*time.Microsecond))
		stored, err := repo.Store(ctx, in)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if !stored.CreatedAt.Equal(base.Add(123 * time.Millisecond)) {
			t.Fatalf("created_at not truncated to ms: %v", stored.CreatedAt)
		}
		got, err := repo.Get(ctx, "r-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if diff := cmp.Diff(stored, got); diff != "" {
			t.Fatalf("round trip mismatch (-stored +got):\n%s", diff)
		}

		// Store replaces the whole document.
		in.Name = "renamed"
		in.Tags = nil
		if _, err := repo.Store(ctx, in); err != nil {
			t.Fatalf("Store replace: %v", err)
		}
		got, _ = repo.Get(ctx, "r-1")
		if got.Name != "renamed" || len(got.Tags) != 0 {
			t.Fatalf("replace: got name=%q tags=%v", got.Name, got.Tags)
		}
	})
}

func TestEmptyCollectionsReadBackAsNil(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		ctx := context.Background()

		in := sampleRule("r-empty", base)
		in.Tags = datatypes.JSONSlice[string]{}
		in.ValidationResults = datatypes.JSONMap{}
		stored, err := repo.Store(ctx, in)
		if err != nil {
			t.Fatalf("Store: %v", err)
		}
		if stored.Tags != nil || stored.ValidationResults != nil {
			t.Fatalf("stored collections: want=nil got tags=%#v validation=%#v", stored.Tags, stored.ValidationResults)
		}
		got, err := repo.Get(ctx, "r-empty")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if diff := cmp.Diff(stored, got); diff != "" {
			t.Fatalf("empty collections mismatch (-stored +got):\n%s", diff)
		}
	})
}

func TestGetMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		_, err := repo.Get(context.Background(), "nope")
		if rules.KindOf(err) != rules.KindNotFound {
			t.Fatalf("kind: want=%s got=%s (%v)", rules.KindNotFound, rules.KindOf(err), err)
		}
	})
}

func TestListNewestFirstWithLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 2, (&clock{}).now)
		ctx := context.Background()
		for i, id := range []string{"old", "newest", "middle"} {
			offset := map[int]time.Duration{0: 0, 1: 2 * time.Hour, 2: time.Hour}[i]
			if _, err := repo.Store(ctx, sampleRule(id, base.Add(offset))); err != nil {
				t.Fatalf("Store %s: %v", id, err)
			}
		}
		got, err := repo.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		ids := make([]string, 0, len(got))
		for _, r := range got {
			ids = append(ids, r.RuleID)
		}
		if strings.Join(ids, ",") != "newest,middle" {
			t.Fatalf("order: want=%q got=%q", "newest,middle", strings.Join(ids, ","))
		}
	})
}

func TestUpdateMetadataKeepsVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		c := &clock{}
		repo := newRepo(t, 0, c.now)
		ctx := context.Background()
		orig, _ := repo.Store(ctx, sampleRule("r-1", base))

		name := "renamed"
		active := true
		tags := []string{"x"}
		got, err := repo.Update(ctx, "r-1", rules.RuleFields{Name: &name, IsActive: &active, Tags: &tags})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got.Version != 1 || got.Artifact != orig.Artifact {
			t.Fatalf("metadata update changed artifact/version: %+v", got)
		}
		if got.Name != "renamed" || !got.IsActive || len(got.Tags) != 1 {
			t.Fatalf("fields not applied: %+v", got)
		}
		if !got.UpdatedAt.After(orig.UpdatedAt) {
			t.Fatalf("updated_at not advanced: before=%v after=%v", orig.UpdatedAt, got.UpdatedAt)
		}
		stored, _ := repo.Get(ctx, "r-1")
		if diff := cmp.Diff(got, stored); diff != "" {
			t.Fatalf("returned rule differs from stored (-returned +stored):\n%s", diff)
		}
	})
}

func TestUpdateArtifactBumpsVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		ctx := context.Background()
		_, _ = repo.Store(ctx, sampleRule("r-1", base))

		for want := 2; want <= 3; want++ {
			art := "INSERT INTO call_alerts SELECT " + strconv.Itoa(want)
			got, err := repo.Update(ctx, "r-1", rules.RuleFields{Artifact: &art})
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.Version != want || got.Artifact != art {
				t.Fatalf("version: want=%d got=%d artifact=%q", want, got.Version, got.Artifact)
			}
		}
		stored, _ := repo.Get(ctx, "r-1")
		if stored.Version != 3 {
			t.Fatalf("stored version: want=3 got=%d", stored.Version)
		}
	})
}

func TestUpdateExpectedVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		ctx := context.Background()
		_, _ = repo.Store(ctx, sampleRule("r-1", base))

		art := "INSERT INTO call_alerts SELECT 2"
		stale := 7
		_, err := repo.Update(ctx, "r-1", rules.RuleFields{Artifact: &art, ExpectedVersion: &stale})
		if rules.KindOf(err) != rules.KindConflict {
			t.Fatalf("kind: want=%s got=%s (%v)", rules.KindConflict, rules.KindOf(err), err)
		}
		current := 1
		got, err := repo.Update(ctx, "r-1", rules.RuleFields{Artifact: &art, ExpectedVersion: &current})
		if err != nil || got.Version != 2 {
			t.Fatalf("Update with current version: got=%v err=%v", got, err)
		}
	})
}

func TestUpdateMissing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		name := "x"
		_, err := repo.Update(context.Background(), "nope", rules.RuleFields{Name: &name})
		if rules.KindOf(err) != rules.KindNotFound {
			t.Fatalf("kind: want=%s got=%s (%v)", rules.KindNotFound, rules.KindOf(err), err)
		}
		_, err = repo.UpdateStatus(context.Background(), "nope", rules.StatusChange{To: rules.StatusValidating})
		if rules.KindOf(err) != rules.KindNotFound {
			t.Fatalf("status kind: want=%s got=%s (%v)", rules.KindNotFound, rules.KindOf(err), err)
		}
	})
}

func TestUpdateStatus(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		c := &clock{}
		repo := newRepo(t, 0, c.now)
		ctx := context.Background()
		_, _ = repo.Store(ctx, sampleRule("r-1", base))

		from := rules.StatusCreated
		got, err := repo.UpdateStatus(ctx, "r-1", rules.StatusChange{
			To:      rules.StatusDeployed,
			From:    &from,
			Metrics: map[string]interface{}{"alerts": 3.0},
		})
		if err != nil {
			t.Fatalf("UpdateStatus: %v", err)
		}
		if got.Status != rules.StatusDeployed || got.DeployedAt == nil || got.Version != 1 {
			t.Fatalf("status write: %+v", got)
		}
		if !got.DeployedAt.Equal(got.UpdatedAt) {
			t.Fatalf("deployed_at: want=%v got=%v", got.UpdatedAt, got.DeployedAt)
		}
		stored, _ := repo.Get(ctx, "r-1")
		if diff := cmp.Diff(got, stored); diff != "" {
			t.Fatalf("returned rule differs from stored (-returned +stored):\n%s", diff)
		}
		if stored.Metrics["alerts"] != 3.0 || stored.ValidationResults["ok"] != true {
			t.Fatalf("opaque maps: metrics=%v validation=%v", stored.Metrics, stored.ValidationResults)
		}

		// Leaving deployed keeps the last deployment time.
		deployedAt := *stored.DeployedAt
		got, err = repo.UpdateStatus(ctx, "r-1", rules.StatusChange{To: rules.StatusInactive})
		if err != nil || got.DeployedAt == nil || !got.DeployedAt.Equal(deployedAt) {
			t.Fatalf("inactive: got=%+v err=%v", got, err)
		}

		// Stale guard.
		_, err = repo.UpdateStatus(ctx, "r-1", rules.StatusChange{To: rules.StatusDeploying, From: &from})
		if rules.KindOf(err) != rules.KindConflict {
			t.Fatalf("kind: want=%s got=%s (%v)", rules.KindConflict, rules.KindOf(err), err)
		}
	})
}

func TestDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		ctx := context.Background()
		_, _ = repo.Store(ctx, sampleRule("r-1", base))

		if err := repo.Delete(ctx, "r-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := repo.Get(ctx, "r-1"); rules.KindOf(err) != rules.KindNotFound {
			t.Fatalf("Get after delete: want not_found got=%v", err)
		}
		if err := repo.Delete(ctx, "r-1"); rules.KindOf(err) != rules.KindNotFound {
			t.Fatalf("second Delete: want not_found got=%v", err)
		}
	})
}

func TestEnsureSchemaIdempotentAndPing(t *testing.T) {
	forEachBackend(t, func(t *testing.T, newRepo backendFactory) {
		repo := newRepo(t, 0, (&clock{}).now)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			t.Fatalf("second EnsureSchema: %v", err)
		}
		if err := repo.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
