package harness

import (
	"context"
	"sync"

	"github.com/ahm4dd/ipc-race/internal/resource"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

// GoRunner schedules workers as goroutines. The protocol is identical to
// the process runner - coordination still happens only through the store
// and the lock markers - but shared memory exists in principle, so demos
// that must prove the no-shared-memory point use ProcRunner instead.
// Tests and the in-process demo path use this one.
type GoRunner struct {
	// Store is shared by all workers, like the one file all processes
	// would open.
	Store resource.Store
	// NewLock builds a fresh lock identity per worker, so ownership
	// checks mean something even inside one process. nil disables
	// locking regardless of Job.Locked.
	NewLock  func() worker.Locker
	LockName string
}

// Run fans the specs out as goroutines and blocks on the fan-in barrier
// until every worker has signalled completion. Result order matches spec
// order; arrival order is irrelevant.
func (r *GoRunner) Run(_ context.Context, job Job) ([]WorkerResult, error) {
	results := make([]WorkerResult, len(job.Specs))

	var wg sync.WaitGroup
	for i, spec := range job.Specs {
		wg.Add(1)
		go func(i int, spec worker.Spec) {
			defer wg.Done()

			w := &worker.Worker{
				Store:    r.Store,
				LockName: r.LockName,
				Delay:    job.Delay,
				Spec:     spec,
			}
			if job.Locked && r.NewLock != nil {
				w.Lock = r.NewLock()
			}

			var (
				out worker.Outcome
				err error
			)
			switch job.Mode {
			case ModeGuarded:
				op := job.Op(spec.Role)
				out, err = w.CheckThenAct(op.Pred, op.Apply)
			default:
				out, err = w.Increment()
			}
			results[i] = WorkerResult{Spec: spec, Outcome: out, Err: err}
		}(i, spec)
	}
	if job.OnSpawned != nil {
		job.OnSpawned()
	}
	wg.Wait()

	return results, nil
}
