package inference

import "time"

// State is the position of one input file in the inference pipeline.
type State string

const (
	StatePending       State = "PENDING"
	StateLoaded        State = "LOADED"
	StateTiled         State = "TILED"
	StatePredicted     State = "PREDICTED"
	StateMerged        State = "MERGED"
	StatePostprocessed State = "POSTPROCESSED"
	StateWritten       State = "WRITTEN"
	StateSkipped       State = "SKIPPED"
	StateFailed        State = "FAILED"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateWritten || s == StateSkipped || s == StateFailed
}

// FileResult is the outcome for one input file.
type FileResult struct {
	Input    string
	Output   string
	State    State
	Tiles    int
	Err      error
	Duration time.Duration
}

// Summary collects the results of a Run in input order.
type Summary struct {
	Results []FileResult
	Written int
	Skipped int
	Failed  int
}

func (s *Summary) add(r FileResult) {
	s.Results = append(s.Results, r)
	switch r.State {
	case StateWritten:
		s.Written++
	case StateSkipped:
		s.Skipped++
	case StateFailed:
		s.Failed++
	}
}

// Recorder receives every state transition. Implementations must be safe to
// call from the goroutine running the Orchestrator.
type Recorder interface {
	RecordTransition(input string, state State, detail string, tiles int) error
}
