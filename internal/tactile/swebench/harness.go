package swebench

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"swevalidator/internal/logging"
	"swevalidator/internal/tactile"
)

// =============================================================================
// SWE-BENCH HARNESS - external evaluation entry point
// =============================================================================
// The harness builds images, applies each prediction's patch inside a
// container, runs the instance's tests and writes one report.json per
// instance under <log root>/<run id>/<model name>/<instance id>/.

// ModelName is the model_name_or_path under which predictions are submitted.
// The harness uses it as a path component of every report location.
const ModelName = "validator"

// MaxHarnessWorkers caps harness parallelism regardless of batch size.
const MaxHarnessWorkers = 4

// MaxWorkers returns the harness worker bound for a batch of n instances.
func MaxWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxHarnessWorkers {
		return MaxHarnessWorkers
	}
	return n
}

// CacheLevel controls which docker images the harness keeps between runs.
type CacheLevel string

const (
	CacheNone     CacheLevel = "none"
	CacheBase     CacheLevel = "base"
	CacheEnv      CacheLevel = "env"      // keep base+env images, rebuild instance images
	CacheInstance CacheLevel = "instance" // keep everything
)

// EvaluationRequest describes one harness run.
type EvaluationRequest struct {
	DatasetPath     string
	PredictionsPath string
	InstanceIDs     []string
	MaxWorkers      int
	CacheLevel      CacheLevel
	RunID           string

	// Timeout is the per-instance test timeout enforced by the harness.
	Timeout time.Duration
}

// Validate checks the request before handing it to a harness.
func (r EvaluationRequest) Validate() error {
	switch {
	case r.DatasetPath == "":
		return fmt.Errorf("dataset path is required")
	case r.PredictionsPath == "":
		return fmt.Errorf("predictions path is required")
	case len(r.InstanceIDs) == 0:
		return fmt.Errorf("at least one instance id is required")
	case r.MaxWorkers < 1:
		return fmt.Errorf("max workers must be at least 1, got %d", r.MaxWorkers)
	case r.RunID == "":
		return fmt.Errorf("run id is required")
	case r.Timeout < time.Second:
		return fmt.Errorf("timeout must be at least 1s, got %s", r.Timeout)
	case r.CacheLevel == "" || r.CacheLevel == CacheInstance:
		return fmt.Errorf("cache level %q does not rebuild instance images; use %q", r.CacheLevel, CacheEnv)
	}
	return nil
}

// Harness runs an evaluation. Evaluate blocks until the harness finishes;
// a nil error means the harness ran to completion, not that any instance
// passed. Per-instance verdicts are read from the report files.
type Harness interface {
	Evaluate(ctx context.Context, req EvaluationRequest) error
}

// HarnessError reports a harness run that did not complete normally.
type HarnessError struct {
	RunID    string
	ExitCode int
	Killed   bool
	Reason   string
	Output   string // tail of the harness output
}

func (e *HarnessError) Error() string {
	msg := fmt.Sprintf("harness run %s failed", e.RunID)
	switch {
	case e.Killed:
		msg += ": killed (" + e.Reason + ")"
	case e.Reason != "":
		msg += ": " + e.Reason
	default:
		msg += fmt.Sprintf(": exit code %d", e.ExitCode)
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

// PythonHarnessConfig configures the python entry point invocation.
type PythonHarnessConfig struct {
	Python           string
	Module           string
	WorkingDirectory string
	Split            string
	Namespace        string // "none" disables registry image pulls
	OpenFileLimit    int

	// BuildAllowance is added to the process deadline for image builds.
	BuildAllowance time.Duration

	// Environment entries (KEY=VALUE) added to the harness process.
	Environment []string

	// OutputTailLines is how much harness output is kept in errors.
	OutputTailLines int
}

// DefaultPythonHarnessConfig returns sensible defaults.
func DefaultPythonHarnessConfig() PythonHarnessConfig {
	return PythonHarnessConfig{
		Python:          "python3",
		Module:          "swebench.harness.run_evaluation",
		Split:           "test",
		Namespace:       "none",
		OpenFileLimit:   4096,
		BuildAllowance:  2 * time.Hour,
		OutputTailLines: 20,
	}
}

// PythonHarness runs swebench.harness.run_evaluation as a subprocess.
type PythonHarness struct {
	executor tactile.Executor
	config   PythonHarnessConfig
}

// NewPythonHarness creates a harness that launches the python entry point
// through executor.
func NewPythonHarness(executor tactile.Executor, config PythonHarnessConfig) *PythonHarness {
	if config.OutputTailLines <= 0 {
		config.OutputTailLines = 20
	}
	return &PythonHarness{executor: executor, config: config}
}

// Args returns the command line for req.
func (h *PythonHarness) Args(req EvaluationRequest) []string {
	args := []string{
		"-m", h.config.Module,
		"--dataset_name", req.DatasetPath,
		"--split", h.config.Split,
		"--instance_ids",
	}
	args = append(args, req.InstanceIDs...)
	args = append(args,
		"--predictions_path", req.PredictionsPath,
		"--max_workers", strconv.Itoa(req.MaxWorkers),
		"--force_rebuild", "false",
		"--cache_level", string(req.CacheLevel),
		"--clean", "false",
		"--open_file_limit", strconv.Itoa(h.config.OpenFileLimit),
		"--run_id", req.RunID,
		"--timeout", strconv.Itoa(int(req.Timeout/time.Second)),
		"--namespace", h.config.Namespace,
		"--rewrite_reports", "false",
		"--modal", "false",
	)
	return args
}

// Deadline returns the outer bound on the whole harness process: every
// worker wave may use the full per-instance timeout, plus image builds.
func (h *PythonHarness) Deadline(req EvaluationRequest) time.Duration {
	workers := req.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	waves := (len(req.InstanceIDs) + workers - 1) / workers
	return time.Duration(waves)*req.Timeout + h.config.BuildAllowance
}

// Evaluate implements Harness.
func (h *PythonHarness) Evaluate(ctx context.Context, req EvaluationRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid evaluation request: %w", err)
	}

	deadline := h.Deadline(req)
	cmd := tactile.Command{
		Binary:           h.config.Python,
		Arguments:        h.Args(req),
		WorkingDirectory: h.config.WorkingDirectory,
		Environment:      h.config.Environment,
		Limits:           &tactile.ResourceLimits{TimeoutMs: deadline.Milliseconds()},
		RequestID:        uuid.NewString(),
	}

	logging.Harness("Starting harness run %s: %d instance(s), %d worker(s), cache=%s, deadline=%s",
		req.RunID, len(req.InstanceIDs), req.MaxWorkers, req.CacheLevel, deadline)

	result, err := h.executor.Execute(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to launch harness: %w", err)
	}

	tail := result.Tail(h.config.OutputTailLines)
	switch {
	case result.IsError():
		return &HarnessError{RunID: req.RunID, ExitCode: result.ExitCode, Reason: result.Error, Output: tail}
	case result.Killed:
		return &HarnessError{RunID: req.RunID, ExitCode: result.ExitCode, Killed: true, Reason: result.KillReason, Output: tail}
	case result.IsNonZeroExit():
		return &HarnessError{RunID: req.RunID, ExitCode: result.ExitCode, Output: tail}
	}

	logging.HarnessDebug("Harness output tail for %s:\n%s", req.RunID, tail)
	logging.Harness("Harness run %s completed in %s", req.RunID, result.Duration)
	return nil
}
