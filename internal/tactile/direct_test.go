package tactile

import (
	"context"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestDirectExecutor_Success(t *testing.T) {
	skipOnWindows(t)
	exec := NewDirectExecutor()

	result, err := exec.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo hello; echo oops >&2"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, "oops\n", result.Stderr)
	assert.Contains(t, result.Output(), "hello")
	assert.Contains(t, result.Output(), "oops")
	assert.False(t, result.IsError())
	assert.False(t, result.IsNonZeroExit())
}

func TestDirectExecutor_NonZeroExit(t *testing.T) {
	skipOnWindows(t)
	exec := NewDirectExecutor()

	result, err := exec.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "echo failing; exit 3"},
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.ExitCode)
	assert.True(t, result.IsNonZeroExit())
	assert.False(t, result.IsError())
}

func TestDirectExecutor_Timeout(t *testing.T) {
	skipOnWindows(t)
	exec := NewDirectExecutor()

	result, err := exec.Execute(context.Background(), Command{
		Binary:    "sleep",
		Arguments: []string{"5"},
		Limits:    &ResourceLimits{TimeoutMs: 100},
	})
	require.NoError(t, err)

	assert.True(t, result.Killed)
	assert.Contains(t, result.KillReason, "timeout")
	assert.Less(t, result.Duration, 5*time.Second)
}

func TestDirectExecutor_MissingBinary(t *testing.T) {
	exec := NewDirectExecutor()

	result, err := exec.Execute(context.Background(), Command{
		Binary: "definitely-not-a-real-binary-xyz",
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.True(t, result.IsError())
	assert.NotEmpty(t, result.Error)
}

func TestDirectExecutor_ValidateEmptyBinary(t *testing.T) {
	exec := NewDirectExecutor()

	_, err := exec.Execute(context.Background(), Command{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "binary is required")
}

func TestDirectExecutor_OutputTruncation(t *testing.T) {
	skipOnWindows(t)
	cfg := DefaultExecutorConfig()
	cfg.MaxOutputBytes = 8
	exec := NewDirectExecutorWithConfig(cfg)

	result, err := exec.Execute(context.Background(), Command{
		Binary:    "sh",
		Arguments: []string{"-c", "printf 0123456789abcdef"},
	})
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Equal(t, "0123\n... [8 bytes truncated] ...\ncdef", result.Stdout)
	assert.Equal(t, int64(8), result.TruncatedBytes)
}

func TestLimitedWriter_KeepsTail(t *testing.T) {
	lw := newLimitedWriter(32)
	_, _ = lw.Write([]byte("start\n"))
	for i := 0; i < 100; i++ {
		n, err := lw.Write([]byte("noise line\n"))
		require.NoError(t, err)
		assert.Equal(t, 11, n)
	}
	_, _ = lw.Write([]byte("Traceback"))

	out := lw.String()
	assert.True(t, lw.truncated)
	assert.True(t, strings.HasPrefix(out, "start\nno"), out)
	assert.True(t, strings.HasSuffix(out, "\nTraceback"), out)
	assert.Equal(t, int64(6+1100+9-32), lw.discarded)
}

func TestLimitedWriter_UnderLimit(t *testing.T) {
	lw := newLimitedWriter(16)
	_, _ = lw.Write([]byte("hello "))
	_, _ = lw.Write([]byte("world"))
	assert.False(t, lw.truncated)
	assert.Equal(t, "hello world", lw.String())
}

func TestDirectExecutor_EnvironmentFiltered(t *testing.T) {
	skipOnWindows(t)
	t.Setenv("VALIDATOR_SECRET", "hidden")
	t.Setenv("VALIDATOR_VISIBLE", "shown")

	cfg := DefaultExecutorConfig()
	cfg.AllowedEnvironment = append(cfg.AllowedEnvironment, "VALIDATOR_VISIBLE")
	exec := NewDirectExecutorWithConfig(cfg)

	result, err := exec.Execute(context.Background(), Command{
		Binary:      "sh",
		Arguments:   []string{"-c", "echo ${VALIDATOR_VISIBLE}:${VALIDATOR_SECRET}:${EXTRA}"},
		Environment: []string{"EXTRA=added"},
	})
	require.NoError(t, err)
	assert.Equal(t, "shown::added", strings.TrimSpace(result.Stdout))
}

func TestExecutorConfig_Merge(t *testing.T) {
	cfg := DefaultExecutorConfig()
	cfg.MaxTimeout = time.Second

	merged := cfg.Merge(Command{Binary: "x", Limits: &ResourceLimits{TimeoutMs: 60000}})
	assert.Equal(t, ".", merged.WorkingDirectory)
	assert.Equal(t, int64(1000), merged.Limits.TimeoutMs)
	assert.Equal(t, cfg.MaxOutputBytes, merged.Limits.MaxOutputBytes)

	original := &ResourceLimits{}
	merged = DefaultExecutorConfig().Merge(Command{Binary: "x", Limits: original})
	assert.Equal(t, int64(30000), merged.Limits.TimeoutMs)
	assert.Equal(t, int64(0), original.TimeoutMs, "merge must not mutate the caller's limits")
}

func TestExecutionResult_Tail(t *testing.T) {
	r := &ExecutionResult{Stdout: "one\ntwo\n\nthree\n", Stderr: "four\n"}
	assert.Equal(t, "three\nfour", r.Tail(2))
	assert.Equal(t, "one\ntwo\nthree\nfour", r.Tail(10))
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "python3", Command{Binary: "python3"}.CommandString())
	assert.Equal(t, "python3 -m mod", Command{Binary: "python3", Arguments: []string{"-m", "mod"}}.CommandString())
}
