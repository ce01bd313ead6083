package validator

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"

	"swevalidator/internal/logging"
	"swevalidator/internal/tactile/swebench"
)

// maxListedTests is how many failing test names a message lists before
// summarising the rest.
const maxListedTests = 5

// Interpreter turns harness reports into outcomes.
type Interpreter struct {
	logRoot string
}

// NewInterpreter creates an interpreter reading reports under logRoot.
func NewInterpreter(logRoot string) *Interpreter {
	return &Interpreter{logRoot: logRoot}
}

// LogRoot returns the harness log root.
func (in *Interpreter) LogRoot() string {
	return in.logRoot
}

// Interpret reads the report of every instance in batch and classifies it.
// Outcomes are returned in batch order.
func (in *Interpreter) Interpret(runID string, batch *Batch) []Outcome {
	entries := batch.Entries()
	outcomes := make([]Outcome, len(entries))

	var g errgroup.Group
	g.SetLimit(swebench.MaxWorkers(len(entries)))
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			id := entry.Instance.InstanceID
			outcomes[i] = Outcome{
				Source:     entry.Source,
				InstanceID: id,
				Err:        in.classifyPath(runID, id),
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.Err != nil {
			logging.ReportDebug("%s: %s", o.InstanceID, o.Err.Type)
		} else {
			logging.ReportDebug("%s: resolved", o.InstanceID)
		}
	}
	return outcomes
}

func (in *Interpreter) classifyPath(runID, instanceID string) *ValidationError {
	path := swebench.ReportPath(in.logRoot, runID, instanceID)
	report, err := swebench.ReadReport(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return in.newError(ErrorExecution, runID, instanceID,
				"Evaluation report not found for instance '%s'. The evaluation may have failed before completion. Check Docker logs and container status.",
				instanceID)
		}
		logging.ReportWarn("Failed to load report for %s: %v", instanceID, err)
		return in.newError(ErrorExecution, runID, instanceID,
			"Evaluation report for instance '%s' could not be read: %v", instanceID, err)
	}
	return in.Classify(runID, instanceID, report)
}

// Classify decides the outcome of one instance from its report file.
// A nil result means the instance passed.
func (in *Interpreter) Classify(runID, instanceID string, report swebench.ReportFile) *ValidationError {
	r, ok := report[instanceID]
	if !ok {
		return in.newError(ErrorExecution, runID, instanceID,
			"Evaluation report does not contain instance '%s' (found: %s).",
			instanceID, formatKeys(report.Keys()))
	}

	switch {
	case r.PatchIsNone:
		return in.newError(ErrorStructural, runID, instanceID,
			"Patch is None or empty. The data point's 'patch' field is missing or empty.")
	case !r.PatchExists:
		return in.newError(ErrorExecution, runID, instanceID,
			"Patch does not exist in the prediction file. This is an internal error - please report this issue.")
	case !r.PatchSuccessfullyApplied:
		return in.newError(ErrorExecution, runID, instanceID,
			"Patch failed to apply to the codebase. Possible causes: malformed patch format, incompatible with target files, or files have changed. Check the evaluation logs for detailed error messages.")
	case !r.Resolved:
		verr := in.newError(ErrorTestFailure, runID, instanceID, "%s", testFailureMessage(r.TestsStatus))
		verr.TestsStatus = r.TestsStatus
		return verr
	}
	return nil
}

func (in *Interpreter) newError(t ErrorType, runID, instanceID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Type:       t,
		InstanceID: instanceID,
		Message:    fmt.Sprintf(format, args...),
		RunID:      runID,
		LogRoot:    in.logRoot,
	}
}

func testFailureMessage(status *swebench.TestsStatus) string {
	var details []string
	if status != nil {
		if failed := status.FailToPass.Failure; len(failed) > 0 {
			details = append(details, "FAIL_TO_PASS tests still failing "+listTests(failed))
		}
		if broken := status.PassToPass.Failure; len(broken) > 0 {
			details = append(details, "PASS_TO_PASS tests broken "+listTests(broken))
		}
	}
	if len(details) == 0 {
		details = append(details, "Tests did not pass, but specific test failures are not available.")
	}
	return "Test validation failed: " + strings.Join(details, "; ")
}

// listTests renders "(n): a, b, c, d, e and k more".
func listTests(names []string) string {
	shown := names
	if len(shown) > maxListedTests {
		shown = shown[:maxListedTests]
	}
	s := fmt.Sprintf("(%d): %s", len(names), strings.Join(shown, ", "))
	if extra := len(names) - len(shown); extra > 0 {
		s += fmt.Sprintf(" and %d more", extra)
	}
	return s
}

func formatKeys(keys []string) string {
	if len(keys) == 0 {
		return "none"
	}
	return strings.Join(keys, ", ")
}
