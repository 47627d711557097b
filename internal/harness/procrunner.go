package harness

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahm4dd/ipc-race/internal/worker"
)

// ProcRunner spawns each worker as a separate OS process by re-executing
// the CLI binary's hidden worker subcommand. Separate processes guarantee
// that no shared-memory shortcut is available: the only channels between
// workers are the resource artifact and the lock markers, which is the
// point being taught.
//
// Each child reports its outcome as YAML on stdout and exits non-zero on
// unrecoverable error (lock acquisition exhausted, store failure). A
// failed child is recorded and does not abort its siblings.
type ProcRunner struct {
	// Binary is the executable to spawn. Empty means the current
	// executable.
	Binary string
	// ResourcePath and LockDir tell the children where the shared
	// artifacts live.
	ResourcePath string
	LockDir      string
	LockName     string
	// LockAttempts and LockRetry forward the configured lock retry
	// policy to the children. Zero values leave a child on the lockfile
	// package defaults.
	LockAttempts int
	LockRetry    time.Duration
}

// Run spawns one process per spec and waits for every exit status.
func (r *ProcRunner) Run(ctx context.Context, job Job) ([]WorkerResult, error) {
	bin := r.Binary
	if bin == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		bin = self
	}

	results := make([]WorkerResult, len(job.Specs))

	var wg sync.WaitGroup
	for i, spec := range job.Specs {
		wg.Add(1)
		go func(i int, spec worker.Spec) {
			defer wg.Done()
			results[i] = r.spawn(ctx, bin, job, spec)
		}(i, spec)
	}
	if job.OnSpawned != nil {
		job.OnSpawned()
	}
	wg.Wait()

	return results, nil
}

func (r *ProcRunner) spawn(ctx context.Context, bin string, job Job, spec worker.Spec) WorkerResult {
	args := []string{
		"worker",
		"--scenario", job.Scenario,
		"--name", spec.Name,
		"--repetitions", strconv.Itoa(spec.Repetitions),
		"--amount", strconv.Itoa(spec.Amount),
		"--resource", r.ResourcePath,
		"--lock-dir", r.LockDir,
		"--lock-name", r.LockName,
		"--delay-min", job.Delay.Min.String(),
		"--delay-max", job.Delay.Max.String(),
	}
	if spec.Role != "" {
		args = append(args, "--role", spec.Role)
	}
	if job.Locked {
		args = append(args, "--locked")
	}
	if r.LockAttempts > 0 {
		args = append(args, "--lock-attempts", strconv.Itoa(r.LockAttempts))
	}
	if r.LockRetry > 0 {
		args = append(args, "--lock-retry", r.LockRetry.String())
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...) //nolint:gosec // Re-exec of our own binary
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// The child emits its outcome even when it exits non-zero, so the
	// cycles it did complete still count toward the expectation.
	res := WorkerResult{Spec: spec}
	if out := stdout.Bytes(); len(out) > 0 {
		if err := yaml.Unmarshal(out, &res.Outcome); err != nil && runErr == nil {
			runErr = fmt.Errorf("decode worker outcome: %w", err)
		}
	}

	if runErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			res.Err = fmt.Errorf("worker %s: %s: %w", spec.Name, msg, runErr)
		} else {
			res.Err = fmt.Errorf("worker %s: %w", spec.Name, runErr)
		}
	}
	return res
}
