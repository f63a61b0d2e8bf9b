package analysis

import "errors"

var (
	// ErrNoSelection is returned when an analysis run is triggered with an
	// empty checked set.
	ErrNoSelection = errors.New("no files selected")

	// ErrNoAnalyzedSelection is returned when a guideline run is triggered
	// and no checked file carries a non-error result.
	ErrNoAnalyzedSelection = errors.New("no analyzed files selected")

	// ErrRunInFlight is returned when a run is triggered while another is
	// still running. The UI normally prevents this by disabling the actions,
	// but the guard does not depend on the UI.
	ErrRunInFlight = errors.New("a run is already in flight")
)
