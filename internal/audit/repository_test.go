package audit

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-shutters/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-shutters/migrations"
)

func openTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestSQLiteRepository_CreateAndList(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

	logs := []*Log{
		{Action: ActionOverrideSet, EntityType: EntityCover, EntityID: "cover.a", UserID: "wall-panel",
			Details: map[string]any{"minutes": 30}, CreatedAt: base},
		{Action: ActionShading, EntityType: EntityCover, EntityID: "cover.b", CreatedAt: base.Add(time.Minute)},
		{Action: ActionOptionsPatch, EntityType: EntityEntry, EntityID: "south", UserID: "admin",
			CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, l := range logs {
		if err := repo.Create(ctx, l); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if !strings.HasPrefix(l.ID, "aud-") {
			t.Errorf("generated ID = %q", l.ID)
		}
	}

	all, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if all.Total != 3 || len(all.Logs) != 3 || all.Limit != DefaultLimit {
		t.Fatalf("List() = total %d, %d logs, limit %d", all.Total, len(all.Logs), all.Limit)
	}
	if all.Logs[0].Action != ActionOptionsPatch {
		t.Errorf("newest action = %q, want %q", all.Logs[0].Action, ActionOptionsPatch)
	}

	covers, err := repo.List(ctx, Filter{EntityType: EntityCover, Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List(filtered) error = %v", err)
	}
	if covers.Total != 2 || len(covers.Logs) != 1 {
		t.Fatalf("List(filtered) = total %d, %d logs", covers.Total, len(covers.Logs))
	}
	oldest := covers.Logs[0]
	if oldest.UserID != "wall-panel" || oldest.Source != "api" || !oldest.CreatedAt.Equal(base) {
		t.Errorf("oldest cover log = %+v", oldest)
	}
	if oldest.Details["minutes"] != float64(30) {
		t.Errorf("details = %v", oldest.Details)
	}
}

func TestSQLiteRepository_CreateValidation(t *testing.T) {
	repo := openTestRepository(t)
	if err := repo.Create(context.Background(), &Log{EntityType: EntityCover}); err == nil {
		t.Error("Create() without action should fail")
	}
}

func TestClampLimit(t *testing.T) {
	for in, want := range map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, 500: MaxLimit} {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
