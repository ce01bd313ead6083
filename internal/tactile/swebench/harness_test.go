package swebench

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swevalidator/internal/tactile"
)

// fakeExecutor records the command and returns a canned result.
type fakeExecutor struct {
	got    tactile.Command
	result *tactile.ExecutionResult
	err    error
}

func (f *fakeExecutor) Execute(_ context.Context, cmd tactile.Command) (*tactile.ExecutionResult, error) {
	f.got = cmd
	return f.result, f.err
}

func (f *fakeExecutor) Validate(tactile.Command) error { return nil }

func sampleRequest() EvaluationRequest {
	return EvaluationRequest{
		DatasetPath:     "/tmp/dataset_2inst_20250101_000000.json",
		PredictionsPath: "/tmp/predictions_2inst_20250101_000000.json",
		InstanceIDs:     []string{"a__a-1", "b__b-2"},
		MaxWorkers:      2,
		CacheLevel:      CacheEnv,
		RunID:           "validator_2inst_20250101_000000",
		Timeout:         1800 * time.Second,
	}
}

func TestMaxWorkers(t *testing.T) {
	tests := []struct{ n, want int }{
		{0, 1}, {1, 1}, {3, 3}, {4, 4}, {5, 4}, {10, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaxWorkers(tt.n), "batch size %d", tt.n)
	}
}

func TestEvaluationRequest_Validate(t *testing.T) {
	require.NoError(t, sampleRequest().Validate())

	tests := []struct {
		name   string
		mutate func(*EvaluationRequest)
	}{
		{"no dataset", func(r *EvaluationRequest) { r.DatasetPath = "" }},
		{"no predictions", func(r *EvaluationRequest) { r.PredictionsPath = "" }},
		{"no instances", func(r *EvaluationRequest) { r.InstanceIDs = nil }},
		{"no workers", func(r *EvaluationRequest) { r.MaxWorkers = 0 }},
		{"no run id", func(r *EvaluationRequest) { r.RunID = "" }},
		{"no timeout", func(r *EvaluationRequest) { r.Timeout = 0 }},
		{"sub-second timeout", func(r *EvaluationRequest) { r.Timeout = 500 * time.Millisecond }},
		{"no cache level", func(r *EvaluationRequest) { r.CacheLevel = "" }},
		{"instance cache level", func(r *EvaluationRequest) { r.CacheLevel = CacheInstance }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := sampleRequest()
			tt.mutate(&req)
			assert.Error(t, req.Validate())
		})
	}
}

func TestPythonHarness_Args(t *testing.T) {
	h := NewPythonHarness(&fakeExecutor{}, DefaultPythonHarnessConfig())
	args := strings.Join(h.Args(sampleRequest()), " ")

	for _, want := range []string{
		"-m swebench.harness.run_evaluation",
		"--dataset_name /tmp/dataset_2inst_20250101_000000.json",
		"--split test",
		"--instance_ids a__a-1 b__b-2 --predictions_path",
		"--max_workers 2",
		"--force_rebuild false",
		"--cache_level env",
		"--clean false",
		"--open_file_limit 4096",
		"--run_id validator_2inst_20250101_000000",
		"--timeout 1800",
		"--namespace none",
		"--rewrite_reports false",
		"--modal false",
	} {
		assert.Contains(t, args, want)
	}
}

func TestPythonHarness_Deadline(t *testing.T) {
	cfg := DefaultPythonHarnessConfig()
	cfg.BuildAllowance = time.Hour
	h := NewPythonHarness(&fakeExecutor{}, cfg)

	req := sampleRequest()
	req.InstanceIDs = []string{"a", "b", "c", "d", "e"}
	req.MaxWorkers = 4
	req.Timeout = 10 * time.Minute

	// two waves of up to four instances
	assert.Equal(t, 20*time.Minute+time.Hour, h.Deadline(req))
}

func TestPythonHarness_EvaluateSuccess(t *testing.T) {
	exec := &fakeExecutor{result: &tactile.ExecutionResult{Success: true, ExitCode: 0, Stdout: "All instances run."}}
	cfg := DefaultPythonHarnessConfig()
	cfg.Python = "/venv/bin/python"
	cfg.WorkingDirectory = "/work"
	cfg.Environment = []string{"DOCKER_HOST=unix:///var/run/docker.sock"}
	h := NewPythonHarness(exec, cfg)

	require.NoError(t, h.Evaluate(context.Background(), sampleRequest()))

	assert.Equal(t, "/venv/bin/python", exec.got.Binary)
	assert.Equal(t, "/work", exec.got.WorkingDirectory)
	assert.Equal(t, cfg.Environment, exec.got.Environment)
	assert.NotEmpty(t, exec.got.RequestID)
	require.NotNil(t, exec.got.Limits)
	assert.Equal(t, h.Deadline(sampleRequest()).Milliseconds(), exec.got.Limits.TimeoutMs)
}

func TestPythonHarness_EvaluateFailures(t *testing.T) {
	tests := []struct {
		name    string
		result  *tactile.ExecutionResult
		execErr error
		want    []string
	}{
		{
			name:   "non-zero exit",
			result: &tactile.ExecutionResult{Success: true, ExitCode: 1, Stderr: "Traceback\nDockerException: cannot connect"},
			want:   []string{"exit code 1", "DockerException: cannot connect"},
		},
		{
			name:   "killed",
			result: &tactile.ExecutionResult{Success: true, Killed: true, KillReason: "timeout after 2h0m0s"},
			want:   []string{"killed", "timeout after 2h0m0s"},
		},
		{
			name:   "infrastructure",
			result: &tactile.ExecutionResult{Success: false, ExitCode: -1, Error: "exec: \"python3\": executable file not found in $PATH"},
			want:   []string{"executable file not found"},
		},
		{
			name:    "launch error",
			execErr: errors.New("binary is required"),
			want:    []string{"failed to launch harness", "binary is required"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewPythonHarness(&fakeExecutor{result: tt.result, err: tt.execErr}, DefaultPythonHarnessConfig())
			err := h.Evaluate(context.Background(), sampleRequest())
			require.Error(t, err)
			for _, want := range tt.want {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestPythonHarness_RejectsInvalidRequest(t *testing.T) {
	exec := &fakeExecutor{}
	h := NewPythonHarness(exec, DefaultPythonHarnessConfig())

	req := sampleRequest()
	req.InstanceIDs = nil
	err := h.Evaluate(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid evaluation request")
	assert.Empty(t, exec.got.Binary, "executor must not be called")
}

func TestHarnessError_TypedRecovery(t *testing.T) {
	h := NewPythonHarness(&fakeExecutor{result: &tactile.ExecutionResult{Success: true, ExitCode: 2}}, DefaultPythonHarnessConfig())
	err := h.Evaluate(context.Background(), sampleRequest())

	var harnessErr *HarnessError
	require.True(t, errors.As(err, &harnessErr))
	assert.Equal(t, 2, harnessErr.ExitCode)
	assert.Equal(t, "validator_2inst_20250101_000000", harnessErr.RunID)
}
