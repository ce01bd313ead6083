package tactile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"swevalidator/internal/logging"
)

// waitDelay bounds how long Wait lingers on output pipes after the process exits.
const waitDelay = 10 * time.Second

// DirectExecutor executes commands directly on the host using os/exec.
type DirectExecutor struct {
	mu     sync.RWMutex
	config ExecutorConfig
}

// NewDirectExecutor creates a new direct executor with default config.
func NewDirectExecutor() *DirectExecutor {
	return NewDirectExecutorWithConfig(DefaultExecutorConfig())
}

// NewDirectExecutorWithConfig creates a new direct executor with custom config.
func NewDirectExecutorWithConfig(config ExecutorConfig) *DirectExecutor {
	logging.TactileDebug("Creating DirectExecutor with config: timeout=%s, maxOutput=%d bytes",
		config.DefaultTimeout, config.MaxOutputBytes)
	return &DirectExecutor{
		config: config,
	}
}

// Config returns a copy of the executor configuration.
func (e *DirectExecutor) Config() ExecutorConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.config
}

// Validate checks if a command can be executed.
func (e *DirectExecutor) Validate(cmd Command) error {
	if cmd.Binary == "" {
		return fmt.Errorf("binary is required")
	}
	return nil
}

// Execute runs a command directly on the host.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	log := logging.WithRequestID(logging.CategoryTactile, cmd.RequestID)
	timer := logging.StartTimer(logging.CategoryTactile, "Direct command execution")
	defer timer.Stop()

	if err := e.Validate(cmd); err != nil {
		log.Warn("Command validation failed: %s %v - %v", cmd.Binary, cmd.Arguments, err)
		return nil, err
	}

	config := e.Config()
	cmd = config.Merge(cmd)

	log.Info("Executing command: %s (dir=%s, timeout=%dms)",
		cmd.CommandString(), cmd.WorkingDirectory, cmd.Limits.TimeoutMs)

	result := &ExecutionResult{
		ExitCode: -1,
		Command:  &cmd,
	}

	timeout := time.Duration(cmd.Limits.TimeoutMs) * time.Millisecond
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	execCmd.Dir = cmd.WorkingDirectory
	execCmd.Env = e.buildEnvironment(config, cmd.Environment)
	// Children that inherit the output pipes must not keep Wait blocked.
	execCmd.WaitDelay = waitDelay

	stdoutLimited := newLimitedWriter(cmd.Limits.MaxOutputBytes)
	stderrLimited := newLimitedWriter(cmd.Limits.MaxOutputBytes)
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutLimited.String()
	result.Stderr = stderrLimited.String()
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
		log.Warn("Command output truncated: %d bytes discarded", result.TruncatedBytes)
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)
		result.Success = true // Infrastructure worked, command was killed
		log.Warn("Command killed (timeout): %s after %s", cmd.Binary, timeout)
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Killed = true
		result.KillReason = "context canceled"
		result.Success = true
		log.Debug("Command canceled: %s", cmd.Binary)
	case errors.As(err, &exitErr):
		result.Success = true // Command ran, just returned non-zero
		result.ExitCode = exitErr.ExitCode()
		log.Debug("Command exited non-zero: %s -> %d", cmd.Binary, result.ExitCode)
	default:
		result.Success = false
		result.Error = err.Error()
		log.Error("Command failed: %s - %v", cmd.Binary, err)
		return result, nil
	}

	log.Info("Command completed: %s -> exit=%d, duration=%s, output=%d bytes",
		cmd.Binary, result.ExitCode, result.Duration, len(result.Combined))

	return result, nil
}

// buildEnvironment creates the environment variable list.
func (e *DirectExecutor) buildEnvironment(config ExecutorConfig, cmdEnv []string) []string {
	env := make([]string, 0, len(config.AllowedEnvironment)+len(cmdEnv))

	for _, key := range config.AllowedEnvironment {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, fmt.Sprintf("%s=%s", key, val))
		}
	}

	return append(env, cmdEnv...)
}

// limitedWriter caps captured output at max bytes. The first half of the
// budget keeps the head of the stream and the rest is a ring holding the
// most recent bytes, so a final traceback survives truncation.
type limitedWriter struct {
	max  int64
	head []byte

	ring        []byte
	pos         int
	tailWritten int64

	truncated bool
	discarded int64
}

func newLimitedWriter(max int64) *limitedWriter {
	if max < 0 {
		max = 0
	}
	return &limitedWriter{max: max}
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)

	if room := lw.max/2 - int64(len(lw.head)); room > 0 {
		take := int64(len(p))
		if take > room {
			take = room
		}
		lw.head = append(lw.head, p[:take]...)
		p = p[take:]
	}
	if len(p) == 0 {
		return n, nil
	}

	size := lw.max - lw.max/2
	if size == 0 {
		lw.truncated = true
		lw.discarded += int64(len(p))
		return n, nil
	}
	if lw.ring == nil {
		lw.ring = make([]byte, size)
	}

	lw.tailWritten += int64(len(p))
	if int64(len(p)) >= size {
		copy(lw.ring, p[int64(len(p))-size:])
		lw.pos = 0
	} else {
		c := copy(lw.ring[lw.pos:], p)
		if c < len(p) {
			copy(lw.ring, p[c:])
		}
		lw.pos = int((int64(lw.pos) + int64(len(p))) % size)
	}

	if over := lw.tailWritten - size; over > 0 {
		lw.truncated = true
		lw.discarded = over
	}
	return n, nil
}

// String returns the captured output with a marker where bytes were dropped.
func (lw *limitedWriter) String() string {
	if !lw.truncated || lw.ring == nil {
		out := string(lw.head)
		if lw.ring != nil {
			out += string(lw.ring[:lw.tailWritten])
		}
		return out
	}
	return fmt.Sprintf("%s\n... [%d bytes truncated] ...\n%s%s",
		lw.head, lw.discarded, lw.ring[lw.pos:], lw.ring[:lw.pos])
}
