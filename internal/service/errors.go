package service

import "errors"

// Sentinel errors returned by the report services. The engine itself never
// raises domain errors; these mark failures at the snapshot-fetch boundary
// or invalid report requests rejected before the engine runs.
var (
	// ErrInvalidMonthRange marks a report request whose month range is
	// missing, unparseable, or ends before it starts.
	ErrInvalidMonthRange = errors.New("invalid month range")

	// ErrInvalidMetric marks an unknown forecast metric mode.
	ErrInvalidMetric = errors.New("invalid metric mode")

	// ErrUpstreamUnavailable marks a failed snapshot fetch from one of the
	// three upstream systems.
	ErrUpstreamUnavailable = errors.New("upstream system unavailable")
)
