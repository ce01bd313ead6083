// Package validator decides whether SWE-bench data points are valid: it loads
// them, stages them for the evaluation harness, runs the harness and turns the
// per-instance reports into pass/fail outcomes.
package validator

import (
	"fmt"
	"path/filepath"
	"strings"

	"swevalidator/internal/tactile/swebench"
)

// ErrorType classifies why a data point failed validation.
type ErrorType string

const (
	// ErrorStructural means the data point itself is malformed.
	ErrorStructural ErrorType = "structural"
	// ErrorExecution means the environment or harness failed.
	ErrorExecution ErrorType = "execution"
	// ErrorTestFailure means the harness ran the tests and they did not pass.
	ErrorTestFailure ErrorType = "test_failure"
)

// Label returns the human-readable name used in annotations.
func (t ErrorType) Label() string {
	switch t {
	case ErrorStructural:
		return "Structural Error"
	case ErrorTestFailure:
		return "Test Failure"
	default:
		return "Execution Error"
	}
}

// ValidationError is the reason a single data point failed.
// RunID is empty for errors raised before the harness was invoked.
type ValidationError struct {
	Type       ErrorType
	InstanceID string
	Message    string
	RunID      string

	// LogRoot is the harness log root used to point at instance logs.
	LogRoot string

	// TestsStatus is set for test failures.
	TestsStatus *swebench.TestsStatus
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s", e.InstanceID, e.Message)
}

// LogDir returns the directory holding the instance's harness logs, or ""
// when the error happened before any run.
func (e *ValidationError) LogDir() string {
	if e.RunID == "" {
		return ""
	}
	return swebench.InstanceLogDir(e.LogRoot, e.RunID, e.InstanceID)
}

// Detail returns the error followed by where to find the harness logs.
func (e *ValidationError) Detail() string {
	dir := e.LogDir()
	if dir == "" {
		return e.Error()
	}
	var sb strings.Builder
	sb.WriteString(e.Error())
	sb.WriteString("\nCheck logs at: " + dir)
	sb.WriteString("\n  - " + filepath.Join(dir, swebench.RunInstanceLog) + " (execution log)")
	sb.WriteString("\n  - " + filepath.Join(dir, swebench.TestOutputFile) + " (test output)")
	sb.WriteString("\n  - " + filepath.Join(dir, swebench.ReportFileName) + " (evaluation report)")
	return sb.String()
}

// AnnotationMessage returns the message in the form used for CI annotations.
func (e *ValidationError) AnnotationMessage() string {
	return "❌ " + e.Type.Label() + ": " + e.Message
}

func structuralError(instanceID, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Type:       ErrorStructural,
		InstanceID: instanceID,
		Message:    fmt.Sprintf(format, args...),
	}
}
