package validator

import "sort"

// Outcome is the verdict for one data point. Err is nil on success.
type Outcome struct {
	Source     string
	InstanceID string
	Err        *ValidationError
}

// Success reports whether the data point passed.
func (o Outcome) Success() bool {
	return o.Err == nil
}

// Result is the per-file view of an outcome.
type Result struct {
	Success bool
	Error   *ValidationError
}

// Summary collects the outcomes of one run in batch order.
type Summary struct {
	RunID    string
	Outcomes []Outcome
}

// Aggregate builds a summary from outcomes.
func Aggregate(runID string, outcomes []Outcome) *Summary {
	return &Summary{RunID: runID, Outcomes: outcomes}
}

// ByName maps each data point file name to its result.
func (s *Summary) ByName() map[string]Result {
	m := make(map[string]Result, len(s.Outcomes))
	for _, o := range s.Outcomes {
		m[o.Source] = Result{Success: o.Success(), Error: o.Err}
	}
	return m
}

// Passed returns the file names that passed, in batch order.
func (s *Summary) Passed() []string {
	var out []string
	for _, o := range s.Outcomes {
		if o.Success() {
			out = append(out, o.Source)
		}
	}
	return out
}

// Failed returns the outcomes that failed, in batch order.
func (s *Summary) Failed() []Outcome {
	var out []Outcome
	for _, o := range s.Outcomes {
		if !o.Success() {
			out = append(out, o)
		}
	}
	return out
}

// CountByType counts failures per error type.
func (s *Summary) CountByType() map[ErrorType]int {
	counts := make(map[ErrorType]int)
	for _, o := range s.Failed() {
		counts[o.Err.Type]++
	}
	return counts
}

// ErrorTypes returns the error types present, sorted.
func (s *Summary) ErrorTypes() []ErrorType {
	counts := s.CountByType()
	types := make([]ErrorType, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// OK reports whether every data point passed. An empty summary is not OK.
func (s *Summary) OK() bool {
	return len(s.Outcomes) > 0 && len(s.Failed()) == 0
}

// ExitCode returns the process exit status for the run.
func (s *Summary) ExitCode() int {
	if s.OK() {
		return 0
	}
	return 1
}
