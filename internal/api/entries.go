package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shutters/internal/audit"
	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// entryView is the list representation of an entry.
type entryView struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Covers []string `json:"covers"`
}

// handleListEntries returns every configured entry with its covers.
func (s *Server) handleListEntries(w http.ResponseWriter, _ *http.Request) {
	views := make([]entryView, 0)
	for _, c := range s.registry.All() {
		view := entryView{ID: c.EntryID(), Covers: c.Covers()}
		view.Name = c.Options().String(cover.OptName)
		views = append(views, view)
	}
	if s.entries != nil {
		names := make(map[string]string)
		for _, e := range s.entries.Entries() {
			names[e.ID] = e.Name
		}
		for i := range views {
			if name := names[views[i].ID]; name != "" {
				views[i].Name = name
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": views, "count": len(views)})
}

// handleGetEntryOptions returns the effective options of an entry.
func (s *Server) handleGetEntryOptions(w http.ResponseWriter, r *http.Request) {
	entryID := chi.URLParam(r, "entry")
	if entryID == "" || len(entryID) > maxPathParamLen {
		writeBadRequest(w, "invalid entry ID")
		return
	}

	c, ok := s.registry.Coordinator(entryID)
	if !ok {
		writeNotFound(w, "entry not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entry_id": entryID, "options": c.Options()})
}

// handlePatchEntryOptions stores option overrides for an entry and applies
// them. Keys set to null fall back to the entries file value. Applying new
// options clears every override of the entry and re-evaluates its covers.
//
// Body: {"wind_limit": 40, "shading_position": null}
func (s *Server) handlePatchEntryOptions(w http.ResponseWriter, r *http.Request) {
	if s.entries == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "option editing is not enabled")
		return
	}
	entryID := chi.URLParam(r, "entry")
	if entryID == "" || len(entryID) > maxPathParamLen {
		writeBadRequest(w, "invalid entry ID")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(patch) == 0 {
		writeBadRequest(w, "patch must contain at least one option")
		return
	}

	opts, err := s.entries.PatchOptions(r.Context(), entryID, patch)
	if err != nil {
		s.logger.Warn("patching entry options failed", "entry", entryID, "error", err)
		writeDomainError(w, err)
		return
	}
	s.logger.Info("entry options updated via API", "entry", entryID, "keys", len(patch))
	s.auditLog(r, audit.ActionOptionsPatch, audit.EntityEntry, entryID, patch)
	writeJSON(w, http.StatusOK, map[string]any{"entry_id": entryID, "options": opts})
}
