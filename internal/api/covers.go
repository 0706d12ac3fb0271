package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-shutters/internal/audit"
	"github.com/nerrad567/gray-logic-shutters/internal/cover"
)

// maxPathParamLen limits identifier length in URLs.
const maxPathParamLen = 255

// defaultFullOpenTarget is the recalibration target when none is given.
const defaultFullOpenTarget = 100.0

// overrideRequest is the body of the override and shading endpoints.
type overrideRequest struct {
	// Minutes overrides the configured duration; omitted means the
	// entry's reset mode decides.
	Minutes *int `json:"minutes"`
}

// recalibrateRequest is the body of the recalibrate endpoint.
type recalibrateRequest struct {
	FullOpenTarget *float64 `json:"full_open_target"`
}

// handleListCovers returns the snapshot of every managed cover.
func (s *Server) handleListCovers(w http.ResponseWriter, _ *http.Request) {
	snaps := s.registry.Snapshots()
	writeJSON(w, http.StatusOK, map[string]any{"covers": snaps, "count": len(snaps)})
}

// handleGetCover returns one cover's snapshot.
func (s *Server) handleGetCover(w http.ResponseWriter, r *http.Request) {
	c, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}
	snap, found := c.Snapshot(coverID)
	if !found {
		writeNotFound(w, msgNoController)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleSetOverride starts a manual override.
//
// Body (optional): {"minutes": 30}
func (s *Server) handleSetOverride(w http.ResponseWriter, r *http.Request) {
	c, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if !decodeOptionalBody(w, r, &req) || !validMinutes(w, req.Minutes) {
		return
	}

	if !c.SetManualOverride(coverID, req.Minutes) {
		writeNotFound(w, msgNoController)
		return
	}
	s.logger.Info("manual override set via API", "cover", coverID, "minutes", req.Minutes)
	s.auditLog(r, audit.ActionOverrideSet, audit.EntityCover, coverID, minutesDetails(req.Minutes))
	s.writeSnapshot(w, c, coverID)
}

// handleClearOverride ends a manual override.
func (s *Server) handleClearOverride(w http.ResponseWriter, r *http.Request) {
	c, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}
	if !c.ClearManualOverride(coverID) {
		writeNotFound(w, msgNoController)
		return
	}
	s.logger.Info("manual override cleared via API", "cover", coverID)
	s.auditLog(r, audit.ActionOverrideClear, audit.EntityCover, coverID, nil)
	s.writeSnapshot(w, c, coverID)
}

// handleActivateShading moves a cover to its shading position under a
// scoped override.
//
// Body (optional): {"minutes": 60}
func (s *Server) handleActivateShading(w http.ResponseWriter, r *http.Request) {
	c, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if !decodeOptionalBody(w, r, &req) || !validMinutes(w, req.Minutes) {
		return
	}

	found, err := c.ActivateShading(r.Context(), coverID, req.Minutes)
	if !found {
		writeNotFound(w, msgNoController)
		return
	}
	if err != nil {
		s.logger.Warn("activating shading failed", "cover", coverID, "error", err)
		writeDomainError(w, err)
		return
	}
	s.auditLog(r, audit.ActionShading, audit.EntityCover, coverID, minutesDetails(req.Minutes))
	s.writeSnapshot(w, c, coverID)
}

// handleRecalibrate starts the calibration sequence in the background and
// answers 202. Progress is visible through the snapshot's calibrating flag.
//
// Body (optional): {"full_open_target": 100}
func (s *Server) handleRecalibrate(w http.ResponseWriter, r *http.Request) {
	c, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}
	var req recalibrateRequest
	if !decodeOptionalBody(w, r, &req) {
		return
	}
	target := defaultFullOpenTarget
	if req.FullOpenTarget != nil {
		target = *req.FullOpenTarget
	}
	if target < 0 || target > 100 {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "full_open_target must be between 0 and 100")
		return
	}

	snap, found := c.Snapshot(coverID)
	if !found {
		writeNotFound(w, msgNoController)
		return
	}
	if snap.Calibrating {
		writeDomainError(w, cover.ErrCalibrationInProgress)
		return
	}

	go s.recalibrate(s.ctx, c, coverID, target)
	s.auditLog(r, audit.ActionRecalibrate, audit.EntityCover, coverID, map[string]any{"full_open_target": target})

	writeJSON(w, http.StatusAccepted, map[string]any{
		"cover":            coverID,
		"full_open_target": target,
		"status":           "calibrating",
	})
}

// recalibrate runs one calibration and logs its outcome.
func (s *Server) recalibrate(ctx context.Context, c *cover.Coordinator, coverID string, target float64) {
	result, found, err := c.RecalibrateCover(ctx, coverID, target)
	switch {
	case !found:
		s.logger.Warn("recalibration skipped, cover no longer managed", "cover", coverID)
		return
	case err != nil:
		s.logger.Error("recalibration failed", "cover", coverID, "error", err)
		return
	}
	s.logger.Info("recalibration finished",
		"cover", coverID,
		"from", result.From,
		"reached_target", result.ReachedTarget,
		"returned", result.Returned,
	)
}

// handleCoverHistory returns recorded decisions for a cover, newest first.
//
// Query parameters:
//   - limit: maximum entries (default from covers.history_limit, max 200)
func (s *Server) handleCoverHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "decision history is not enabled")
		return
	}
	_, coverID, ok := s.lookupCover(w, r)
	if !ok {
		return
	}

	limit := s.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	decisions, err := s.history.List(r.Context(), coverID, limit)
	if err != nil {
		s.logger.Error("listing cover history", "cover", coverID, "error", err)
		writeInternalError(w, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cover":     coverID,
		"decisions": decisions,
		"count":     len(decisions),
	})
}

// lookupCover resolves the {cover} URL parameter to its coordinator and
// writes the error response when that fails.
func (s *Server) lookupCover(w http.ResponseWriter, r *http.Request) (*cover.Coordinator, string, bool) {
	coverID := chi.URLParam(r, "cover")
	if coverID == "" || len(coverID) > maxPathParamLen {
		writeBadRequest(w, "invalid cover ID")
		return nil, "", false
	}
	c, ok := s.registry.Find(coverID)
	if !ok {
		writeNotFound(w, msgNoController)
		return nil, "", false
	}
	return c, coverID, true
}

// writeSnapshot answers with the cover's current snapshot.
func (s *Server) writeSnapshot(w http.ResponseWriter, c *cover.Coordinator, coverID string) {
	snap, ok := c.Snapshot(coverID)
	if !ok {
		writeNotFound(w, msgNoController)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// decodeOptionalBody decodes a JSON body into v. An empty body leaves v
// untouched.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil {
		return true
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// validMinutes rejects negative override durations.
func validMinutes(w http.ResponseWriter, minutes *int) bool {
	if minutes != nil && *minutes < 0 {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeValidation, "minutes must not be negative")
		return false
	}
	return true
}

// minutesDetails returns the audit details of an override request.
func minutesDetails(minutes *int) map[string]any {
	if minutes == nil {
		return nil
	}
	return map[string]any{"minutes": *minutes}
}
