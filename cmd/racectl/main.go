// Package main provides the CLI entry point for racectl.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ahm4dd/ipc-race/internal/bankdb"
	"github.com/ahm4dd/ipc-race/internal/config"
	"github.com/ahm4dd/ipc-race/internal/harness"
	"github.com/ahm4dd/ipc-race/internal/lockfile"
	"github.com/ahm4dd/ipc-race/internal/resource"
	"github.com/ahm4dd/ipc-race/internal/scenario"
	"github.com/ahm4dd/ipc-race/internal/tui"
	"github.com/ahm4dd/ipc-race/internal/ui"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

// lockName is the single lock all workers of a run contend for.
const lockName = "resource"

var (
	// Global flags
	flagConfigPath string
	flagWorkDir    string

	// Run flags
	runWorkers     int
	runRepetitions int
	runAmount      int
	runInitial     int
	runLocked      bool
	runProcs       bool
	runDelayMin    string
	runDelayMax    string

	// SQL flags
	sqlDSN     string
	sqlWorkers int
	sqlAmount  int
	sqlInitial int
	sqlHold    time.Duration
	sqlRacy    bool

	// TUI flags
	tuiProcs bool

	// Worker flags (hidden re-exec subcommand)
	workerScenario string
	workerName     string
	workerReps     int
	workerAmount   int
	workerResource string
	workerLockDir  string
	workerLockName string
	workerDelayMin string
	workerDelayMax string
	workerRole     string
	workerLocked   bool
	workerAttempts int
	workerRetry    string

	// Global config (loaded once, used by all commands)
	cfg *config.Config
)

// Exit codes. Commands use these semantically:
//   - exitValidation: unknown scenario, invalid flag values
//   - exitRace: run completed but the final state is inconsistent
//   - exitWrite: store write failure, lock acquisition exhausted
const (
	exitValidation = 1
	exitRace       = 2
	exitWrite      = 3
)

// ExitError is an error that carries a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitErr creates an ExitError with the given code and message.
func exitErr(code int, msg string) error {
	return &ExitError{Code: code, Message: msg}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitError *ExitError
		if errors.As(err, &exitError) {
			os.Exit(exitError.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "racectl",
	Short: "Demonstrate and fix cross-process race conditions",
	Long: `racectl runs scenarios in which concurrent workers mutate one shared
resource through widened read-modify-write and check-then-act windows,
then verifies the final state against what serial execution would have
produced.

Run a scenario unsynchronized to watch updates get lost, then run it
again with --locked to see a file-based mutual-exclusion lock restore
correctness. Use --procs to contend from separate OS processes instead
of goroutines.`,
}

// initConfig loads the configuration with proper precedence.
func initConfig() error {
	if cfg != nil {
		return nil
	}

	var err error
	cfg, err = config.Load(config.LoadOptions{
		ExplicitPath: flagConfigPath,
	})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Apply CLI flag overrides (highest priority)
	cfg.ApplyCLIOverrides(config.CLIOverrides{
		WorkDir:     flagWorkDir,
		Workers:     runWorkers,
		Repetitions: runRepetitions,
		DelayMin:    runDelayMin,
		DelayMax:    runDelayMax,
		SQLDSN:      sqlDSN,
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitValidation, "invalid configuration")
	}
	return nil
}

// lockOptions builds the retry policy shared by orchestrator-side locks.
func lockOptions() lockfile.Options {
	return lockfile.Options{
		MaxAttempts: cfg.Lock.MaxAttempts,
		RetryDelay:  cfg.LockRetryDelay(),
	}
}

var runCmd = &cobra.Command{
	Use:   "run <scenario>",
	Short: "Run a race scenario and verify the outcome",
	Long: `Run one scenario to completion and verify the final state of the
shared resource.

Available scenarios:
  counter  shared counter, read-modify-write increments
  bank     bank balance, check-then-act withdrawals
  stock    inventory stock, check-then-act purchases
  buffer   bounded buffer, producers and consumers

Without --locked the workers race freely and updates are typically
lost; with --locked every cycle runs under the file lock and the run
verifies exactly. --procs spawns each worker as its own OS process.`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		var initial *int
		if cmd.Flags().Changed("initial") {
			initial = &runInitial
		}
		return runScenario(cmd.Context(), args[0], scenario.Overrides{
			Workers:     cfg.Run.Workers,
			Repetitions: cfg.Run.Repetitions,
			Amount:      runAmount,
			Initial:     initial,
			Locked:      runLocked,
		}, runProcs)
	},
}

// runScenario executes one scenario end to end and renders the report.
func runScenario(ctx context.Context, name string, o scenario.Overrides, procs bool) error {
	s, err := scenario.Lookup(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitValidation, "unknown scenario")
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error: create work dir: %v\n", err)
		return exitErr(exitWrite, "create work dir")
	}

	o.Delay.Min, o.Delay.Max = cfg.DelayBounds()

	resourcePath := filepath.Join(cfg.WorkDir, resource.DefaultFilename)
	store := resource.NewFileStore(resourcePath)
	cleaner := lockfile.New(cfg.WorkDir, lockOptions())

	var runner harness.Runner
	if procs {
		runner = &harness.ProcRunner{
			ResourcePath: resourcePath,
			LockDir:      cfg.WorkDir,
			LockName:     lockName,
			LockAttempts: cfg.Lock.MaxAttempts,
			LockRetry:    cfg.LockRetryDelay(),
		}
	} else {
		runner = &harness.GoRunner{
			Store: store,
			NewLock: func() worker.Locker {
				return lockfile.New(cfg.WorkDir, lockOptions())
			},
			LockName: lockName,
		}
	}

	h := harness.New(store, runner, cleaner, lockName)

	job := s.Job(o)
	fmt.Println(ui.Dim(fmt.Sprintf("%s  delay=%s..%s procs=%t",
		s.Description, job.Delay.Min, job.Delay.Max, procs)))

	rep, err := h.Run(ctx, job)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitErr(exitWrite, "run failed")
	}

	fmt.Print(ui.RenderReport(rep))

	res := rep.Result()
	if !res.Success {
		return exitErr(exitRace, res.Message)
	}
	return nil
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive menu for picking and running a scenario",
	Long: `Launch an interactive menu listing the built-in scenarios.

Navigation:
  ↑/↓ or j/k   Navigate list
  l or Space   Toggle locked mode
  Enter        Run the highlighted scenario
  q / Esc      Quit`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		sel, err := tui.Run(scenario.All())
		if err != nil {
			return err
		}
		if sel.Cancelled {
			return nil
		}
		return runScenario(cmd.Context(), sel.Scenario, scenario.Overrides{
			Workers:     cfg.Run.Workers,
			Repetitions: cfg.Run.Repetitions,
			Locked:      sel.Locked,
		}, tuiProcs)
	},
}

var sqlCmd = &cobra.Command{
	Use:   "sql",
	Short: "Run the SQL-transaction withdrawal demo",
	Long: `Run concurrent withdrawals against a Postgres account row.

By default each withdrawal runs as a BEGIN/SELECT FOR UPDATE/UPDATE/
COMMIT transaction and the balance verifies exactly. With --racy the
check and the update run as two independent autocommit statements,
which typically overdraws the account - the same lost-update anatomy
as the file scenarios, with the locking delegated to the database.`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := bankdb.Open(cfg.SQL.DSN)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitErr(exitValidation, "open database")
		}
		defer func() { _ = b.Close() }()

		pingCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := b.Ping(pingCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: database unreachable: %v\n", err)
			return exitErr(exitValidation, "database unreachable")
		}

		mode := "transactional"
		if sqlRacy {
			mode = "racy (autocommit statements)"
		}
		fmt.Println(ui.Title("bank account via SQL"))
		fmt.Println(ui.Dim(fmt.Sprintf("mode=%s workers=%d amount=%d initial=%d",
			mode, sqlWorkers, sqlAmount, sqlInitial)))
		fmt.Println()

		out, err := bankdb.Demo(cmd.Context(), b, bankdb.DemoConfig{
			Initial:       sqlInitial,
			Amount:        sqlAmount,
			Workers:       sqlWorkers,
			Hold:          worker.Delay{Min: sqlHold, Max: sqlHold},
			Transactional: !sqlRacy,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitErr(exitWrite, "demo failed")
		}

		res := out.Result()
		fmt.Println(ui.RenderResult(res))
		if !res.Success {
			return exitErr(exitRace, res.Message)
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove leftover resource and lock artifacts",
	Long: `Remove the shared resource file and any lock markers left in the
work directory, such as after a crashed run whose owner never released
the lock.`,
	PreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
	RunE: func(_ *cobra.Command, _ []string) error {
		store := resource.NewFileStore(filepath.Join(cfg.WorkDir, resource.DefaultFilename))
		if err := store.Teardown(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: remove resource: %v\n", err)
			return exitErr(exitWrite, "remove resource")
		}

		lock := lockfile.New(cfg.WorkDir, lockOptions())
		if err := lock.Cleanup(lockName); err != nil {
			fmt.Fprintf(os.Stderr, "Error: remove lock marker: %v\n", err)
			return exitErr(exitWrite, "remove lock marker")
		}

		fmt.Println(ui.Pass(fmt.Sprintf("cleaned %s", cfg.WorkDir)))
		return nil
	},
}

// configCmd is the parent command for configuration operations.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage racectl configuration",
	Long: `Configuration is loaded from multiple sources with the following
precedence (highest to lowest):
1. CLI flags (--workdir, --workers, ...)
2. Environment variables (IPCRACE_WORKDIR, IPCRACE_WORKERS, ...)
3. Project config (.ipc-race.yaml in repo root)
4. Global config (~/.config/ipc-race/config.yaml)
5. Built-in defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show resolved configuration",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := initConfig(); err != nil {
			return err
		}

		fmt.Print(cfg.String())

		global, project := config.DiscoveredPaths()
		fmt.Println("\n# Configuration sources:")
		if global != "" {
			fmt.Printf("# - Global: %s\n", global)
		} else {
			fmt.Println("# - Global: (not found)")
		}
		if project != "" {
			fmt.Printf("# - Project: %s\n", project)
		} else {
			fmt.Println("# - Project: (not found)")
		}
		if flagConfigPath != "" {
			fmt.Printf("# - Explicit: %s\n", flagConfigPath)
		}
		return nil
	},
}

// workerCmd is the hidden re-exec target: the orchestrator spawns one
// `racectl worker` process per spec when running with --procs. It talks
// to nothing in-process - only the resource file and the lock marker.
var workerCmd = &cobra.Command{
	Use:    "worker",
	Hidden: true,
	Short:  "Run a single worker against a shared resource file",
	RunE: func(_ *cobra.Command, _ []string) error {
		delay, err := parseWorkerDelay()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitErr(exitValidation, "invalid delay")
		}

		s, err := scenario.Lookup(workerScenario)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitErr(exitValidation, "unknown scenario")
		}

		w := &worker.Worker{
			Store:    resource.NewFileStore(workerResource),
			LockName: workerLockName,
			Delay:    delay,
			Spec: worker.Spec{
				Name:        workerName,
				Repetitions: workerReps,
				Amount:      workerAmount,
				Role:        workerRole,
			},
		}
		if workerLocked {
			opts, optErr := workerLockOptions()
			if optErr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", optErr)
				return exitErr(exitValidation, "invalid lock policy")
			}
			w.Lock = lockfile.New(workerLockDir, opts)
		}

		var out worker.Outcome
		var runErr error
		if s.Mode == harness.ModeGuarded {
			op, opErr := scenario.Op(workerScenario, workerRole, workerAmount, s.Capacity)
			if opErr != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", opErr)
				return exitErr(exitValidation, "unknown role")
			}
			out, runErr = w.CheckThenAct(op.Pred, op.Apply)
		} else {
			out, runErr = w.Increment()
		}

		// The outcome goes to stdout even on failure: the cycles this
		// worker did complete still count toward the orchestrator's
		// expected value.
		if encErr := yaml.NewEncoder(os.Stdout).Encode(out); encErr != nil {
			fmt.Fprintf(os.Stderr, "Error: encode outcome: %v\n", encErr)
			return exitErr(exitWrite, "encode outcome")
		}

		if runErr != nil {
			fmt.Fprintln(os.Stderr, runErr)
			return exitErr(exitWrite, "worker failed")
		}
		return nil
	},
}

// workerLockOptions builds the child's lock retry policy from the flags
// the orchestrator forwarded. Zero values fall back to the lockfile
// package defaults, so a child spawned without the flags still works.
func workerLockOptions() (lockfile.Options, error) {
	opts := lockfile.Options{MaxAttempts: workerAttempts}
	if workerRetry != "" {
		retry, err := time.ParseDuration(workerRetry)
		if err != nil {
			return lockfile.Options{}, fmt.Errorf("invalid --lock-retry %q: %w", workerRetry, err)
		}
		opts.RetryDelay = retry
	}
	return opts, nil
}

func parseWorkerDelay() (worker.Delay, error) {
	var d worker.Delay
	if workerDelayMin != "" {
		dmin, err := time.ParseDuration(workerDelayMin)
		if err != nil {
			return d, fmt.Errorf("invalid --delay-min %q: %w", workerDelayMin, err)
		}
		d.Min = dmin
	}
	if workerDelayMax != "" {
		dmax, err := time.ParseDuration(workerDelayMax)
		if err != nil {
			return d, fmt.Errorf("invalid --delay-max %q: %w", workerDelayMax, err)
		}
		d.Max = dmax
	}
	return d, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to config file (overrides discovery)")
	rootCmd.PersistentFlags().StringVar(&flagWorkDir, "workdir", "", "directory for resource and lock artifacts")

	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "number of workers (0 = scenario default)")
	runCmd.Flags().IntVarP(&runRepetitions, "repetitions", "r", 0, "cycles per worker (0 = scenario default)")
	runCmd.Flags().IntVar(&runAmount, "amount", 0, "delta per cycle (0 = scenario default)")
	runCmd.Flags().IntVar(&runInitial, "initial", 0, "initial resource value (scenario default unless set)")
	runCmd.Flags().BoolVarP(&runLocked, "locked", "l", false, "synchronize cycles with the file lock")
	runCmd.Flags().BoolVar(&runProcs, "procs", false, "spawn workers as separate OS processes")
	runCmd.Flags().StringVar(&runDelayMin, "delay-min", "", "lower bound of the injected delay window")
	runCmd.Flags().StringVar(&runDelayMax, "delay-max", "", "upper bound of the injected delay window")

	tuiCmd.Flags().BoolVar(&tuiProcs, "procs", false, "spawn workers as separate OS processes")

	sqlCmd.Flags().StringVar(&sqlDSN, "dsn", "", "Postgres connection string")
	sqlCmd.Flags().IntVarP(&sqlWorkers, "workers", "w", 4, "number of concurrent withdrawals")
	sqlCmd.Flags().IntVar(&sqlAmount, "amount", 300, "withdrawal amount")
	sqlCmd.Flags().IntVar(&sqlInitial, "initial", 1000, "initial account balance")
	sqlCmd.Flags().DurationVar(&sqlHold, "hold", 100*time.Millisecond, "pause between check and update")
	sqlCmd.Flags().BoolVar(&sqlRacy, "racy", false, "use autocommit statements instead of a transaction")

	workerCmd.Flags().StringVar(&workerScenario, "scenario", "", "scenario name")
	workerCmd.Flags().StringVar(&workerName, "name", "", "worker name for bookkeeping")
	workerCmd.Flags().IntVar(&workerReps, "repetitions", 1, "cycles to perform")
	workerCmd.Flags().IntVar(&workerAmount, "amount", 1, "delta per cycle")
	workerCmd.Flags().StringVar(&workerResource, "resource", "", "path to the shared resource file")
	workerCmd.Flags().StringVar(&workerLockDir, "lock-dir", "", "directory holding lock markers")
	workerCmd.Flags().StringVar(&workerLockName, "lock-name", lockName, "lock name to contend for")
	workerCmd.Flags().StringVar(&workerDelayMin, "delay-min", "", "lower bound of the injected delay window")
	workerCmd.Flags().StringVar(&workerDelayMax, "delay-max", "", "upper bound of the injected delay window")
	workerCmd.Flags().StringVar(&workerRole, "role", "", "worker role in mixed scenarios")
	workerCmd.Flags().BoolVar(&workerLocked, "locked", false, "synchronize cycles with the file lock")
	workerCmd.Flags().IntVar(&workerAttempts, "lock-attempts", 0, "lock acquisition attempts (0 = package default)")
	workerCmd.Flags().StringVar(&workerRetry, "lock-retry", "", "delay between lock attempts (empty = package default)")
	_ = workerCmd.MarkFlagRequired("scenario")
	_ = workerCmd.MarkFlagRequired("name")
	_ = workerCmd.MarkFlagRequired("resource")

	configCmd.AddCommand(configShowCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(sqlCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(workerCmd)
}
