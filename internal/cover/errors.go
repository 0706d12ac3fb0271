package cover

import "errors"

// Domain errors for the cover package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, cover.ErrNoController) {
//	    // report "no controller found for cover"
//	}
var (
	// ErrNoController is returned when no engine handles the requested cover.
	ErrNoController = errors.New("cover: no controller found")

	// ErrInvalidCover is returned when an engine is created without a cover entity.
	ErrInvalidCover = errors.New("cover: invalid cover entity")

	// ErrMissingDependency is returned when a required host interface is nil.
	ErrMissingDependency = errors.New("cover: missing dependency")

	// ErrEngineClosed is returned by operations on an engine after Teardown.
	ErrEngineClosed = errors.New("cover: engine closed")

	// ErrCalibrationInProgress is returned when a recalibration is already running.
	ErrCalibrationInProgress = errors.New("cover: calibration in progress")

	// ErrPositionUnknown is returned when the cover does not report a position.
	ErrPositionUnknown = errors.New("cover: position unknown")

	// ErrInvalidTime is returned when a time-of-day value cannot be parsed.
	ErrInvalidTime = errors.New("cover: invalid time of day")
)
