package cover

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Recalibrate drives the cover to fullOpenTarget and back so the host can
// learn the real travel range.
//
// Automation is suspended by a scope-all override for the duration. Each
// leg waits until the reported position is within tolerance or the
// calibration timeout elapses; a timed-out leg is logged and the sequence
// continues. The override and reason in place before the call are restored
// on every exit path. Override changes and configuration updates made while
// the sequence runs leave the calibration override in place and apply to
// the restored state instead.
//
// Returns:
//   - CalibrationResult: Start position and per-leg outcome
//   - error: ErrCalibrationInProgress, ErrPositionUnknown, a command error or
//     the context error
func (e *Engine) Recalibrate(ctx context.Context, fullOpenTarget float64) (CalibrationResult, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return CalibrationResult{}, ErrEngineClosed
	}
	if e.calibrating {
		e.mu.Unlock()
		return CalibrationResult{}, ErrCalibrationInProgress
	}

	e.savedOverride = e.override
	e.savedReason = e.reason
	now := e.clock.Now()
	until := now.Add(time.Duration(e.opts.Int(OptManualOverrideMinutes, 90)) * time.Minute)
	e.override.start(&until, true)
	e.calibrating = true
	tolerance := e.opts.Float(OptPositionTolerance, 3)
	from := e.currentPosition()
	e.publishLocked(now)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.override = e.savedOverride
		e.reason = e.savedReason
		e.savedOverride = override{}
		e.savedReason = ReasonNone
		e.calibrating = false
		now := e.clock.Now()
		e.previewNextEvents(now)
		e.publishLocked(now)
	}()

	if from == nil {
		return CalibrationResult{}, fmt.Errorf("recalibrate %s: %w", e.cover, ErrPositionUnknown)
	}
	result := CalibrationResult{From: *from, Target: fullOpenTarget}
	e.logger.Info("cover recalibration started", "cover", e.cover, "from", *from, "target", fullOpenTarget)

	if err := e.sink.SetPosition(ctx, e.cover, fullOpenTarget, true); err != nil {
		return result, fmt.Errorf("recalibrate %s: %w", e.cover, err)
	}
	reached, err := e.waitForPosition(ctx, fullOpenTarget, tolerance)
	if err != nil {
		return result, err
	}
	result.ReachedTarget = reached
	if !reached {
		e.logger.Warn("cover did not reach calibration target", "cover", e.cover, "target", fullOpenTarget)
	}

	if err := e.sink.SetPosition(ctx, e.cover, *from, true); err != nil {
		return result, fmt.Errorf("recalibrate %s: %w", e.cover, err)
	}
	returned, err := e.waitForPosition(ctx, *from, tolerance)
	if err != nil {
		return result, err
	}
	result.Returned = returned
	if !returned {
		e.logger.Warn("cover did not return after calibration", "cover", e.cover, "position", *from)
	}

	e.logger.Info("cover recalibration finished", "cover", e.cover,
		"reached_target", result.ReachedTarget, "returned", result.Returned)
	return result, nil
}

// waitForPosition polls the reported position until it is within tolerance
// of want. It returns false when the calibration timeout elapses first.
func (e *Engine) waitForPosition(ctx context.Context, want, tolerance float64) (bool, error) {
	timeout := time.NewTimer(e.calibrationTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(e.calibrationPoll)
	defer ticker.Stop()

	for {
		if pos := e.currentPosition(); pos != nil && math.Abs(*pos-want) <= tolerance {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timeout.C:
			return false, nil
		case <-ticker.C:
		}
	}
}
