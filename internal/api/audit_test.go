package api

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-shutters/internal/audit"
	"github.com/nerrad567/gray-logic-shutters/internal/auth"
)

// nextAudit returns the next queued audit entry.
func nextAudit(t *testing.T, env *testEnv) *audit.Log {
	t.Helper()
	select {
	case entry := <-env.srv.auditCh:
		return entry
	case <-time.After(time.Second):
		t.Fatal("no audit entry queued")
		return nil
	}
}

func TestAuditLog_OperatorActions(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		method     string
		path       string
		body       string
		action     string
		entityType string
		entityID   string
	}{
		{http.MethodPost, "/api/v1/covers/cover.a/override", `{"minutes": 15}`, audit.ActionOverrideSet, audit.EntityCover, "cover.a"},
		{http.MethodDelete, "/api/v1/covers/cover.a/override", "", audit.ActionOverrideClear, audit.EntityCover, "cover.a"},
		{http.MethodPost, "/api/v1/covers/cover.b/shading", "", audit.ActionShading, audit.EntityCover, "cover.b"},
		{http.MethodPatch, "/api/v1/entries/south/options", `{"wind_limit": 40}`, audit.ActionOptionsPatch, audit.EntityEntry, "south"},
	}
	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			if rec := env.do(t, tt.method, tt.path, tt.body); rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (%s)", rec.Code, rec.Body.String())
			}
			entry := nextAudit(t, env)
			if entry.Action != tt.action || entry.EntityType != tt.entityType || entry.EntityID != tt.entityID {
				t.Errorf("audit entry = %+v", entry)
			}
		})
	}
}

func TestAuditLog_RecordsSubjectAndDetails(t *testing.T) {
	env := newTestEnv(t, withSecret)
	tok, err := auth.GenerateToken("wall-panel", auth.RoleOperator, testSecret, "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	rec := env.do(t, http.MethodPost, "/api/v1/covers/cover.a/override", `{"minutes": 20}`, "Authorization", "Bearer "+tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	entry := nextAudit(t, env)
	if entry.UserID != "wall-panel" || entry.Source != "api" {
		t.Errorf("audit entry = %+v", entry)
	}
	if entry.Details["minutes"] != 20 {
		t.Errorf("details = %v", entry.Details)
	}
}

func TestAuditLog_FailedActionsAreNotRecorded(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, http.MethodPost, "/api/v1/covers/cover.nope/override", "")
	env.do(t, http.MethodPost, "/api/v1/covers/cover.a/override", `{"minutes": -1}`)

	select {
	case entry := <-env.srv.auditCh:
		t.Errorf("unexpected audit entry %+v", entry)
	default:
	}
}

func TestDrainAuditLog(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.srv.drainAuditLog(ctx)
		close(done)
	}()

	env.do(t, http.MethodDelete, "/api/v1/covers/cover.a/override", "")
	cancel()
	<-done

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	if len(env.audit.logs) != 1 || env.audit.logs[0].Action != audit.ActionOverrideClear {
		t.Errorf("written logs = %+v", env.audit.logs)
	}
}

func TestListAuditLogs(t *testing.T) {
	env := newTestEnv(t)
	env.audit.logs = []audit.Log{{ID: "aud-1", Action: audit.ActionShading, EntityType: audit.EntityCover, EntityID: "cover.a"}}

	rec := env.do(t, http.MethodGet, "/api/v1/audit?entity_type=cover&entity_id=cover.a&limit=10&offset=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := decodeBody[audit.ListResult](t, rec)
	if body.Total != 1 || body.Logs[0].ID != "aud-1" {
		t.Errorf("body = %+v", body)
	}
	want := audit.Filter{EntityType: "cover", EntityID: "cover.a", Limit: 10, Offset: 5}
	if env.audit.lastFilter != want {
		t.Errorf("filter = %+v, want %+v", env.audit.lastFilter, want)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/audit?offset=-1", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative offset = %d, want 400", rec.Code)
	}
}

func TestListAuditLogs_Access(t *testing.T) {
	env := newTestEnv(t, withSecret)
	tok, err := auth.GenerateToken("ops", auth.RoleOperator, testSecret, "", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/audit", "", "Authorization", "Bearer "+tok); rec.Code != http.StatusForbidden {
		t.Errorf("operator = %d, want 403", rec.Code)
	}

	disabled := newTestEnv(t, withoutOptionals)
	if rec := disabled.do(t, http.MethodGet, "/api/v1/audit", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without repository = %d, want 503", rec.Code)
	}
}
