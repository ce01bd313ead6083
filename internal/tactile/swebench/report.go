package swebench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// File names the harness writes into each instance's log directory.
const (
	ReportFileName = "report.json"
	RunInstanceLog = "run_instance.log"
	TestOutputFile = "test_output.txt"
)

// TestBucket lists the tests of one category that passed and failed.
type TestBucket struct {
	Success []string `json:"success"`
	Failure []string `json:"failure"`
}

// UnmarshalJSON accepts "pass" as an alias for "success".
func (b *TestBucket) UnmarshalJSON(data []byte) error {
	var wire struct {
		Success []string `json:"success"`
		Pass    []string `json:"pass"`
		Failure []string `json:"failure"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	b.Success = wire.Success
	if b.Success == nil {
		b.Success = wire.Pass
	}
	b.Failure = wire.Failure
	return nil
}

// TestsStatus is the per-category breakdown the harness reports.
type TestsStatus struct {
	FailToPass TestBucket  `json:"FAIL_TO_PASS"`
	PassToPass TestBucket  `json:"PASS_TO_PASS"`
	FailToFail *TestBucket `json:"FAIL_TO_FAIL,omitempty"`
	PassToFail *TestBucket `json:"PASS_TO_FAIL,omitempty"`
}

// InstanceReport is the harness verdict for one instance.
// Flags missing from the report decode as false.
type InstanceReport struct {
	PatchIsNone              bool         `json:"patch_is_None"`
	PatchExists              bool         `json:"patch_exists"`
	PatchSuccessfullyApplied bool         `json:"patch_successfully_applied"`
	Resolved                 bool         `json:"resolved"`
	TestsStatus              *TestsStatus `json:"tests_status,omitempty"`
}

// ReportFile is the content of report.json: instance id -> report.
type ReportFile map[string]InstanceReport

// Keys returns the sorted instance ids present in the report file.
func (r ReportFile) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RunDir returns the directory holding all instance logs of a run.
func RunDir(logRoot, runID string) string {
	return filepath.Join(logRoot, runID, ModelName)
}

// InstanceLogDir returns the directory holding one instance's logs.
func InstanceLogDir(logRoot, runID, instanceID string) string {
	return filepath.Join(RunDir(logRoot, runID), instanceID)
}

// ReportPath returns the location of an instance's report.json.
func ReportPath(logRoot, runID, instanceID string) string {
	return filepath.Join(InstanceLogDir(logRoot, runID, instanceID), ReportFileName)
}

// ReadReport loads a report file. A missing file is returned as an error
// satisfying errors.Is(err, os.ErrNotExist).
func ReadReport(path string) (ReportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report ReportFile
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	if report == nil {
		report = ReportFile{}
	}
	return report, nil
}
