package domain

import (
	"errors"

	"github.com/samirrijal/cadastre/internal/pkg/geospatial"
)

// Geometry errors come from the coordinate math package so errors.Is works across layers.
var (
	ErrInvalidBearingFormat = geospatial.ErrInvalidBearingFormat
	ErrInvalidBearingRange  = geospatial.ErrInvalidBearingRange
	ErrInvalidArc           = geospatial.ErrInvalidArc
)

var (
	ErrSourcePointNotFound  = errors.New("source point not found")
	ErrDuplicatePointNumber = errors.New("duplicate point number")
	ErrPointNotFound        = errors.New("point not found")
	ErrPointInUse           = errors.New("point in use")

	ErrNoActiveTraverse   = errors.New("no active traverse")
	ErrTraverseInProgress = errors.New("a traverse is already in progress")
	ErrTraverseNotOpen    = errors.New("traverse is not open for extension")
	ErrNoClosingCandidate = errors.New("no closing point marked")

	ErrAdjustmentToleranceExceeded = errors.New("adjustment tolerance exceeded")

	ErrDegeneratePolygon  = errors.New("degenerate polygon")
	ErrDuplicateLotNumber = errors.New("duplicate lot number")
	ErrPolygonNotFound    = errors.New("polygon not found")

	ErrPlanNotFound = errors.New("plan not found")
)

// ErrMissingLotNumber is returned when a polygon is committed without a lot number.
var ErrMissingLotNumber = errors.New("lot number is required")
