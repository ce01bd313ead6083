package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"swevalidator/internal/tactile/swebench"
)

func writeDataPoint(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func dataPoint(id, patch string) string {
	return fmt.Sprintf(`{"instance_id": %q, "patch": %q, "repo": "octo/repo", "version": "1.0"}`, id, patch)
}

func writeReportFile(t *testing.T, path string, report swebench.ReportFile) {
	t.Helper()
	data, err := json.Marshal(report)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func resolvedReport() swebench.InstanceReport {
	return swebench.InstanceReport{
		PatchExists:              true,
		PatchSuccessfullyApplied: true,
		Resolved:                 true,
	}
}

// fakeHarness stands in for the SWE-bench harness: it captures the staged
// inputs and writes canned reports.
type fakeHarness struct {
	logRoot string
	reports map[string]swebench.InstanceReport
	raw     map[string]string // instance id -> literal report.json content
	err     error

	mu          sync.Mutex
	calls       int
	req         swebench.EvaluationRequest
	dataset     []map[string]interface{}
	predictions []swebench.Prediction
}

func (f *fakeHarness) Evaluate(_ context.Context, req swebench.EvaluationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.req = req

	if data, err := os.ReadFile(req.DatasetPath); err == nil {
		_ = json.Unmarshal(data, &f.dataset)
	}
	if data, err := os.ReadFile(req.PredictionsPath); err == nil {
		_ = json.Unmarshal(data, &f.predictions)
	}

	if f.err != nil {
		return f.err
	}
	for id, r := range f.reports {
		path := swebench.ReportPath(f.logRoot, req.RunID, id)
		data, err := json.Marshal(swebench.ReportFile{id: r})
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
	}
	for id, content := range f.raw {
		path := swebench.ReportPath(f.logRoot, req.RunID, id)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
