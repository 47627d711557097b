// Package harness orchestrates one race demonstration run: it initializes
// the durable resource, launches K workers concurrently against it, waits
// for all of them, then certifies the final state against the
// arithmetically expected one.
//
// A run moves through INIT -> SPAWNED -> AWAITING_COMPLETION -> VERIFIED
// -> TORN_DOWN. Teardown is deferred, so no path skips it - stale
// artifacts would corrupt the next run's verification.
package harness

import (
	"context"
	"errors"
	"fmt"

	"github.com/ahm4dd/ipc-race/internal/resource"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

// Mode selects the cycle shape all workers in a job use.
type Mode int

const (
	// ModeCounter is read-modify-write: every cycle writes.
	ModeCounter Mode = iota
	// ModeGuarded is check-then-act: a cycle writes only when the
	// predicate approves the value it read.
	ModeGuarded
)

// State is the phase of a harness run.
type State int

const (
	StateInit State = iota
	StateSpawned
	StateAwaitingCompletion
	StateVerified
	StateTornDown
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSpawned:
		return "SPAWNED"
	case StateAwaitingCompletion:
		return "AWAITING_COMPLETION"
	case StateVerified:
		return "VERIFIED"
	case StateTornDown:
		return "TORN_DOWN"
	default:
		return "UNKNOWN"
	}
}

// ErrNoWorkers means Run was asked to orchestrate an empty job.
var ErrNoWorkers = errors.New("job has no workers")

// Op is the semantic of one guarded cycle for a worker role: the
// predicate checked against the value read, the transform applied on
// approval, and the signed effect of one successful act (used by
// verification to compute the expected final value).
type Op struct {
	Pred  func(int) bool
	Apply func(int) int
	Delta int
}

// Job describes one run. The Op callback resolves cycle semantics per
// worker role; it is used in-process only (by the goroutine runner and by
// verification) and never crosses a process boundary - process workers
// re-resolve their semantics from the scenario name.
type Job struct {
	Scenario string
	Mode     Mode
	Initial  int
	// Floor and Capacity bound the guarded invariant (final >= Floor,
	// and final <= Capacity when Capacity > 0).
	Floor    int
	Capacity int
	Locked   bool
	Delay    worker.Delay
	Specs    []worker.Spec
	Op       func(role string) Op
	// OnSpawned is invoked by the runner once every worker has been
	// launched, before it blocks on their completion. Like Op it is
	// in-process only. Optional.
	OnSpawned func()
}

// WorkerResult is one worker's contribution as actually observed.
type WorkerResult struct {
	Spec    worker.Spec
	Outcome worker.Outcome
	Err     error
}

// Runner launches every worker of a job as an independently scheduled
// unit and blocks until all completion signals have arrived, in any
// order. It returns one result per spec, failed workers included -
// a worker failure never aborts its siblings, since the aggregate damage
// from the ones that did complete is part of what the run reports.
type Runner interface {
	Run(ctx context.Context, job Job) ([]WorkerResult, error)
}

// Report is everything one run produced.
type Report struct {
	Job          Job
	Results      []WorkerResult
	Final        resource.Record
	Verification Verification
}

// Result is the presentation boundary: the only contract the CLI and
// menu layers consume.
type Result struct {
	Success bool
	Message string
	Summary string
	Err     error
}

// Harness drives runs against one store.
type Harness struct {
	store    resource.Store
	runner   Runner
	cleaner  Cleaner
	lockName string
	state    State
}

// Cleaner removes lock markers at teardown. Satisfied by lockfile.Lock.
type Cleaner interface {
	Cleanup(name string) error
}

// New creates a Harness. cleaner may be nil when the job runs without a
// lock; lockName is the lock the workers share.
func New(store resource.Store, runner Runner, cleaner Cleaner, lockName string) *Harness {
	return &Harness{store: store, runner: runner, cleaner: cleaner, lockName: lockName}
}

// State returns the current run phase.
func (h *Harness) State() State {
	return h.state
}

// Run executes one full demonstration: initialize, spawn, await, verify,
// tear down. The returned report is valid even when some workers failed;
// only setup errors (init, runner wiring, final read) return a nil
// report.
func (h *Harness) Run(ctx context.Context, job Job) (rep *Report, err error) {
	if len(job.Specs) == 0 {
		return nil, ErrNoWorkers
	}

	h.state = StateInit
	defer func() {
		if terr := h.teardown(); terr != nil && err == nil {
			err = terr
		}
	}()

	if err := h.store.Init(job.Initial); err != nil {
		return nil, fmt.Errorf("initialize resource: %w", err)
	}

	h.state = StateSpawned
	notify := job.OnSpawned
	job.OnSpawned = func() {
		h.state = StateAwaitingCompletion
		if notify != nil {
			notify()
		}
	}
	results, err := h.runner.Run(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("run workers: %w", err)
	}

	final, err := h.store.Read()
	if err != nil {
		return nil, fmt.Errorf("read final state: %w", err)
	}

	h.state = StateVerified
	return &Report{
		Job:          job,
		Results:      results,
		Final:        final,
		Verification: verify(job, results, final.Value),
	}, nil
}

// teardown removes the resource artifact and any lock marker, on success
// and failure paths alike.
func (h *Harness) teardown() error {
	h.state = StateTornDown
	err := h.store.Teardown()
	if h.cleaner != nil && h.lockName != "" {
		if cerr := h.cleaner.Cleanup(h.lockName); cerr != nil && err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	return nil
}
