package validator

import (
	"context"
	"fmt"
	"os"
	"time"

	"swevalidator/internal/logging"
	"swevalidator/internal/tactile/swebench"
)

// RunStampLayout formats the timestamp embedded in run ids and staged file names.
const RunStampLayout = "20060102_150405"

// RunID returns the run identifier for a batch of n instances started at t.
func RunID(n int, t time.Time) string {
	return fmt.Sprintf("validator_%dinst_%s", n, t.Format(RunStampLayout))
}

// Options configures a Validator.
type Options struct {
	// RecordsDir holds the data point files.
	RecordsDir string
	// Extension is appended to bare data point names (default .json).
	Extension string

	// LogRoot is where the harness writes run logs and reports.
	LogRoot string

	// ScratchRoot is the parent of per-run scratch directories
	// (empty = system temp dir).
	ScratchRoot string
	// KeepScratch leaves the scratch directory behind for inspection.
	KeepScratch bool

	// Timeout is the per-instance test timeout handed to the harness.
	Timeout time.Duration
}

// Recorder persists the result of a run.
type Recorder interface {
	RecordSummary(ctx context.Context, summary *Summary, startedAt, finishedAt time.Time) error
}

// Option customises a Validator.
type Option func(*Validator)

// WithClock replaces the wall clock used for run ids.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithHistory records every completed run through r.
func WithHistory(r Recorder) Option {
	return func(v *Validator) { v.history = r }
}

// WithProgress reports harness progress while it runs.
func WithProgress(fn func(swebench.ReportEvent)) Option {
	return func(v *Validator) { v.progress = fn }
}

// WithRunStarted is called once the batch is staged, before the harness runs.
func WithRunStarted(fn func(runID string, instanceIDs []string)) Option {
	return func(v *Validator) { v.started = fn }
}

// Validator runs the full load, stage, evaluate, interpret pipeline.
type Validator struct {
	opts        Options
	harness     swebench.Harness
	loader      *Loader
	interpreter *Interpreter

	now      func() time.Time
	history  Recorder
	progress func(swebench.ReportEvent)
	started  func(runID string, instanceIDs []string)
}

// New creates a validator that evaluates through harness.
func New(opts Options, harness swebench.Harness, options ...Option) *Validator {
	if opts.Timeout <= 0 {
		opts.Timeout = 1800 * time.Second
	}
	v := &Validator{
		opts:        opts,
		harness:     harness,
		loader:      NewLoader(opts.RecordsDir).WithExtension(opts.Extension),
		interpreter: NewInterpreter(opts.LogRoot),
		now:         time.Now,
	}
	for _, o := range options {
		o(v)
	}
	return v
}

// Run validates the named data points.
//
// A malformed data point aborts the run before the harness is invoked and is
// returned as a *ValidationError. Failures of the harness itself never escape:
// they become execution errors on every instance of the summary. Any other
// error is an infrastructure failure (scratch directory, staging I/O).
func (v *Validator) Run(ctx context.Context, names []string) (*Summary, error) {
	batch, err := v.loader.Load(names)
	if err != nil {
		return nil, err
	}

	scratch, err := os.MkdirTemp(v.opts.ScratchRoot, "swe-validator-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer v.cleanup(scratch)

	startedAt := v.now()
	stamp := startedAt.Format(RunStampLayout)
	runID := RunID(batch.Len(), startedAt)

	staged, err := NewStager(scratch).Stage(batch, stamp)
	if err != nil {
		return nil, err
	}

	outcomes := v.invoke(ctx, runID, batch, staged)
	summary := Aggregate(runID, outcomes)
	finishedAt := v.now()

	if v.history != nil {
		if err := v.history.RecordSummary(ctx, summary, startedAt, finishedAt); err != nil {
			logging.StoreWarn("Failed to record run %s: %v", runID, err)
		}
	}

	logging.Boot("Run %s finished: %d passed, %d failed", runID, len(summary.Passed()), len(summary.Failed()))
	return summary, nil
}

// invoke runs the harness over the staged batch and interprets its reports.
// A harness failure is converted to an execution error for every instance.
func (v *Validator) invoke(ctx context.Context, runID string, batch *Batch, staged *StagedFiles) []Outcome {
	ids := batch.InstanceIDs()
	req := swebench.EvaluationRequest{
		DatasetPath:     staged.DatasetPath,
		PredictionsPath: staged.PredictionsPath,
		InstanceIDs:     ids,
		MaxWorkers:      swebench.MaxWorkers(len(ids)),
		CacheLevel:      swebench.CacheEnv, // instance images are always rebuilt
		RunID:           runID,
		Timeout:         v.opts.Timeout,
	}

	if v.started != nil {
		v.started(runID, ids)
	}

	if v.progress != nil {
		w, err := swebench.WatchRun(v.opts.LogRoot, runID, v.progress)
		if err != nil {
			logging.HarnessWarn("Progress watcher unavailable: %v", err)
		} else {
			defer w.Close()
		}
	}

	timer := logging.StartTimer(logging.CategoryHarness, "Evaluate "+runID)
	err := v.evaluate(ctx, req)
	timer.StopWithInfo()

	if err != nil {
		logging.HarnessError("Evaluation failed: %v", err)
		return v.failAll(runID, batch, err)
	}
	return v.interpreter.Interpret(runID, batch)
}

// evaluate calls the harness, turning a panic into an error.
func (v *Validator) evaluate(ctx context.Context, req swebench.EvaluationRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("harness panicked: %v", r)
		}
	}()
	return v.harness.Evaluate(ctx, req)
}

func (v *Validator) failAll(runID string, batch *Batch, cause error) []Outcome {
	outcomes := make([]Outcome, 0, batch.Len())
	for _, e := range batch.Entries() {
		id := e.Instance.InstanceID
		outcomes = append(outcomes, Outcome{
			Source:     e.Source,
			InstanceID: id,
			Err: v.interpreter.newError(ErrorExecution, runID, id,
				"Evaluation harness encountered an unexpected error: %v. This may be a Docker, infrastructure, or harness issue. Check the logs for details.",
				cause),
		})
	}
	return outcomes
}

func (v *Validator) cleanup(scratch string) {
	if v.opts.KeepScratch {
		logging.StagingDebug("Keeping scratch directory %s", scratch)
		return
	}
	if err := os.RemoveAll(scratch); err != nil {
		logging.StagingWarn("Failed to remove scratch directory %s: %v", scratch, err)
	}
}
