// Package worker implements one unit of contended work against the
// resource store: a read-modify-write or check-then-act cycle, repeated a
// configured number of times, either bare (to induce a race) or wrapped in
// the lock (to prevent one).
package worker

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ahm4dd/ipc-race/internal/resource"
)

// Locker is the slice of the lock the worker needs. A nil Locker on a
// Worker means the unsynchronized path.
type Locker interface {
	Acquire(name string) error
	Release(name string) error
}

// Delay is the injected pause between a cycle's read and its write. It
// widens the danger window that is theoretically always present, so races
// manifest reliably within a short demo run; the randomization keeps
// repeated runs from interleaving identically. Tests dial both bounds to
// zero for determinism.
type Delay struct {
	Min time.Duration
	Max time.Duration
}

// Sleep pauses for a random duration within the bounds. A zero Delay
// returns immediately.
func (d Delay) Sleep() {
	dur := d.Min
	if span := d.Max - d.Min; span > 0 {
		dur += rand.N(span)
	}
	if dur > 0 {
		time.Sleep(dur)
	}
}

// Spec parameterizes one worker.
type Spec struct {
	// Name identifies the worker in bookkeeping fields and reports.
	Name string `yaml:"name"`
	// Repetitions is how many cycles the worker performs.
	Repetitions int `yaml:"repetitions"`
	// Amount is the delta per cycle (increment size, withdrawal amount,
	// purchase quantity).
	Amount int `yaml:"amount"`
	// Role distinguishes worker kinds in mixed scenarios (producer vs
	// consumer). Empty for single-role scenarios.
	Role string `yaml:"role,omitempty"`
}

// Outcome counts what one worker actually did. Succeeded and Rejected
// only apply to check-then-act cycles.
type Outcome struct {
	Completed int `yaml:"completed"`
	Succeeded int `yaml:"succeeded,omitempty"`
	Rejected  int `yaml:"rejected,omitempty"`
}

// Worker performs Spec.Repetitions cycles against Store. With Lock set,
// every cycle runs as one critical section under LockName; without it the
// read, delay and write are three unprotected steps.
type Worker struct {
	Store    resource.Store
	Lock     Locker
	LockName string
	Delay    Delay
	Spec     Spec
}

// Increment runs read-modify-write cycles: value = read(); delay();
// write(value + amount). Returns early with an error if the lock cannot
// be acquired for a repetition; the completed count in the outcome still
// reflects the cycles that finished.
func (w *Worker) Increment() (Outcome, error) {
	var out Outcome
	for i := 0; i < w.Spec.Repetitions; i++ {
		if err := w.cycle(func(rec *resource.Record) bool {
			w.Delay.Sleep()
			rec.Value += w.Spec.Amount
			return true
		}); err != nil {
			return out, fmt.Errorf("repetition %d: %w", i+1, err)
		}
		out.Completed++
	}
	return out, nil
}

// CheckThenAct runs guarded cycles: the predicate is checked against the
// current value and, only when it holds, the transform is applied after
// the injected delay. In the unsynchronized path the check and the act
// are separate unprotected steps - the value the predicate approved may
// be stale by the time the act writes.
func (w *Worker) CheckThenAct(pred func(int) bool, apply func(int) int) (Outcome, error) {
	var out Outcome
	for i := 0; i < w.Spec.Repetitions; i++ {
		acted := false
		if err := w.cycle(func(rec *resource.Record) bool {
			if !pred(rec.Value) {
				return false
			}
			w.Delay.Sleep()
			rec.Value = apply(rec.Value)
			acted = true
			return true
		}); err != nil {
			return out, fmt.Errorf("repetition %d: %w", i+1, err)
		}
		out.Completed++
		if acted {
			out.Succeeded++
		} else {
			out.Rejected++
		}
	}
	return out, nil
}

// cycle performs one read / mutate / write round. The mutate callback
// returns false to skip the write (a rejected check-then-act). With a
// lock, the whole round is one critical section.
func (w *Worker) cycle(mutate func(*resource.Record) bool) error {
	if w.Lock != nil {
		if err := w.Lock.Acquire(w.LockName); err != nil {
			return err
		}
		defer func() {
			_ = w.Lock.Release(w.LockName) //nolint:errcheck // Release of an owned lock; mismatch is a no-op
		}()
	}

	rec, err := w.Store.Read()
	if err != nil {
		return err
	}
	if !mutate(&rec) {
		return nil
	}
	rec.Stamp(w.Spec.Name)
	return w.Store.Write(rec)
}
