// Command validator checks SWE-bench data points by running them through the
// official evaluation harness and reporting a verdict per data point.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swevalidator/internal/config"
	"swevalidator/internal/logging"
	"swevalidator/internal/store"
	"swevalidator/internal/tactile"
	"swevalidator/internal/tactile/swebench"
	"swevalidator/internal/validator"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	recordsDir  string
	logRoot     string
	historyPath string

	// Validate flags
	dataPointNames []string
	timeoutSecs    int

	// History flags
	historyLimit int

	// Logger
	logger *zap.Logger

	// newHarness builds the evaluation harness; replaced in tests.
	newHarness = buildHarness

	// stdout is where console output goes.
	stdout io.Writer = os.Stdout
)

// errValidationFailed signals a completed run with failing data points.
// The report has already been printed, so main only sets the exit code.
var errValidationFailed = errors.New("validation failed")

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "validator [data-point]...",
	Short: "Validate SWE-bench data points with the official evaluation harness",
	Long: `Validates SWE-bench data points by running the official evaluation harness.

Each data point is loaded from the records directory, staged as a dataset and a
prediction file, evaluated inside the harness' containers, and reported as
passed or failed with a structural, execution or test failure reason.

Examples:
  validator astropy__astropy-11693
  validator --data_point_name a.json --data_point_name b.json --timeout 900`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := logging.Initialize(cfg.Logging.Options(), verbose); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = logging.Base()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runValidate,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "validator.yaml", "Configuration file")
	rootCmd.PersistentFlags().StringVar(&recordsDir, "records-dir", "", "Directory holding data point files (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logRoot, "log-root", "", "Harness log root (overrides config)")
	rootCmd.PersistentFlags().StringVar(&historyPath, "history", "", "Record runs in this SQLite database (overrides config)")

	rootCmd.Flags().StringArrayVar(&dataPointNames, "data_point_name", nil, "Data point file name to validate (repeatable, .json optional)")
	rootCmd.Flags().IntVar(&timeoutSecs, "timeout", 1800, "Timeout (in seconds) for running tests of one instance")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to list")
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errValidationFailed) {
			fmt.Fprintln(os.Stderr, renderFatal(err))
		}
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if recordsDir != "" {
		cfg.Records.Dir = recordsDir
	}
	if logRoot != "" {
		cfg.Harness.LogRoot = logRoot
	}
	if historyPath != "" {
		cfg.History.Enabled = true
		cfg.History.Path = historyPath
	}
	if cmd.Flags().Changed("timeout") {
		if timeoutSecs <= 0 {
			return nil, fmt.Errorf("--timeout must be positive, got %d", timeoutSecs)
		}
		cfg.Harness.InstanceTimeout = (time.Duration(timeoutSecs) * time.Second).String()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// buildHarness wires the python harness on top of the direct executor.
func buildHarness(cfg *config.Config) swebench.Harness {
	executor := tactile.NewDirectExecutorWithConfig(tactile.ExecutorConfig{
		DefaultWorkingDir:  cfg.Harness.WorkingDirectory,
		DefaultTimeout:     cfg.GetInstanceTimeout(),
		AllowedEnvironment: cfg.Harness.AllowedEnvVars,
		MaxOutputBytes:     10 * 1024 * 1024,
	})

	hc := swebench.DefaultPythonHarnessConfig()
	hc.Python = cfg.Harness.Python
	hc.Module = cfg.Harness.Module
	hc.WorkingDirectory = cfg.Harness.WorkingDirectory
	hc.Split = cfg.Harness.Split
	hc.Namespace = cfg.Harness.Namespace
	hc.OpenFileLimit = cfg.Harness.OpenFileLimit
	hc.BuildAllowance = cfg.GetBuildAllowance()
	return swebench.NewPythonHarness(executor, hc)
}

// runValidate validates the data points named on the command line.
func runValidate(cmd *cobra.Command, args []string) error {
	names := append(append([]string{}, dataPointNames...), args...)
	if len(names) == 0 {
		return fmt.Errorf("no data points given: pass names as arguments or with --data_point_name")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logging.CLIWarn("Received shutdown signal, stopping harness")
			cancel()
		case <-ctx.Done():
		}
	}()

	out := newConsole(stdout)
	opts := []validator.Option{
		validator.WithRunStarted(out.runStarted),
	}
	if verbose {
		opts = append(opts, validator.WithProgress(out.progress))
	}
	if cfg.History.Enabled {
		history, err := store.OpenHistory(cfg.History.Path)
		if err != nil {
			logging.CLIWarn("Validation history disabled: %v", err)
		} else {
			defer history.Close()
			opts = append(opts, validator.WithHistory(history))
		}
	}

	v := validator.New(validator.Options{
		RecordsDir:  cfg.Records.Dir,
		Extension:   cfg.Records.Extension,
		LogRoot:     cfg.ResolvedLogRoot(),
		ScratchRoot: cfg.Scratch.Root,
		KeepScratch: cfg.Scratch.Keep,
		Timeout:     cfg.GetInstanceTimeout(),
	}, newHarness(cfg), opts...)

	logging.CLI("Validating %d data point(s)", len(names))
	summary, err := v.Run(ctx, names)
	if err != nil {
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			out.validationError(verr)
			annotate(stdout, []*validator.ValidationError{verr})
			return errValidationFailed
		}
		return err
	}

	out.summary(summary)
	failed := make([]*validator.ValidationError, 0, len(summary.Failed()))
	for _, o := range summary.Failed() {
		failed = append(failed, o.Err)
	}
	annotate(stdout, failed)

	if !summary.OK() {
		return errValidationFailed
	}
	return nil
}
