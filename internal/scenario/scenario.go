// Package scenario defines the toy domains the harness is demonstrated
// on. Each scenario is a thin parameterization of one harness job -
// initial value, worker fleet, cycle semantics - not its own harness.
package scenario

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/ahm4dd/ipc-race/internal/harness"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

// Scenario names.
const (
	Counter = "counter"
	Bank    = "bank"
	Stock   = "stock"
	Buffer  = "buffer"
)

// Worker roles in the buffer scenario.
const (
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// Errors.
var (
	ErrUnknownScenario = errors.New("unknown scenario")
	ErrUnknownRole     = errors.New("unknown worker role")
)

// Scenario describes one demonstrable domain with its canonical defaults.
type Scenario struct {
	Name        string
	Description string
	Mode        harness.Mode
	Initial     int
	Workers     int
	Repetitions int
	Amount      int
	Floor       int
	Capacity    int
}

// registry holds the built-in scenarios with the canonical demo figures:
// 5x20 increments from 0, four withdrawals of 300 from 1000, fifteen
// buyers against a stock of 10, and a bounded buffer.
var registry = []Scenario{
	{
		Name:        Counter,
		Description: "shared counter, read-modify-write increments",
		Mode:        harness.ModeCounter,
		Initial:     0,
		Workers:     5,
		Repetitions: 20,
		Amount:      1,
	},
	{
		Name:        Bank,
		Description: "bank balance, check-then-act withdrawals",
		Mode:        harness.ModeGuarded,
		Initial:     1000,
		Workers:     4,
		Repetitions: 1,
		Amount:      300,
	},
	{
		Name:        Stock,
		Description: "inventory stock, check-then-act purchases",
		Mode:        harness.ModeGuarded,
		Initial:     10,
		Workers:     15,
		Repetitions: 1,
		Amount:      1,
	},
	{
		Name:        Buffer,
		Description: "bounded buffer, producers and consumers",
		Mode:        harness.ModeGuarded,
		Initial:     0,
		Workers:     5,
		Repetitions: 10,
		Amount:      1,
		Capacity:    8,
	},
}

// All returns the built-in scenarios in presentation order.
func All() []Scenario {
	out := make([]Scenario, len(registry))
	copy(out, registry)
	return out
}

// Lookup finds a scenario by name.
func Lookup(name string) (Scenario, error) {
	for _, s := range registry {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
}

// Op resolves the guarded cycle semantics for a scenario role. Process
// workers call this to rebuild on their side of the process boundary what
// the orchestrator's job describes on its side.
func Op(name, role string, amount, capacity int) (harness.Op, error) {
	s, err := Lookup(name)
	if err != nil {
		return harness.Op{}, err
	}

	switch s.Name {
	case Bank, Stock:
		return harness.Op{
			Pred:  func(v int) bool { return v >= amount },
			Apply: func(v int) int { return v - amount },
			Delta: -amount,
		}, nil
	case Buffer:
		switch role {
		case RoleProducer:
			return harness.Op{
				Pred:  func(v int) bool { return capacity <= 0 || v < capacity },
				Apply: func(v int) int { return v + 1 },
				Delta: 1,
			}, nil
		case RoleConsumer:
			return harness.Op{
				Pred:  func(v int) bool { return v > 0 },
				Apply: func(v int) int { return v - 1 },
				Delta: -1,
			}, nil
		default:
			return harness.Op{}, fmt.Errorf("%w: %q", ErrUnknownRole, role)
		}
	default:
		// Counter is read-modify-write; it has no guarded op.
		return harness.Op{}, fmt.Errorf("%w for scenario %q", ErrUnknownRole, name)
	}
}

// Overrides tunes a scenario away from its canonical defaults. Zero
// values keep the defaults.
type Overrides struct {
	Workers     int
	Repetitions int
	Amount      int
	Initial     *int
	Locked      bool
	Delay       worker.Delay
}

// Job builds the harness job for this scenario.
func (s Scenario) Job(o Overrides) harness.Job {
	workers := s.Workers
	if o.Workers > 0 {
		workers = o.Workers
	}
	reps := s.Repetitions
	if o.Repetitions > 0 {
		reps = o.Repetitions
	}
	amount := s.Amount
	if o.Amount > 0 {
		amount = o.Amount
	}
	initial := s.Initial
	if o.Initial != nil {
		initial = *o.Initial
	}

	job := harness.Job{
		Scenario: s.Name,
		Mode:     s.Mode,
		Initial:  initial,
		Floor:    s.Floor,
		Capacity: s.Capacity,
		Locked:   o.Locked,
		Delay:    o.Delay,
		Specs:    s.specs(workers, reps, amount),
	}
	if s.Mode == harness.ModeGuarded {
		capacity := s.Capacity
		job.Op = func(role string) harness.Op {
			op, err := Op(s.Name, role, amount, capacity)
			if err != nil {
				// Unreachable for jobs built here: specs only carry
				// roles this scenario defines.
				panic(err)
			}
			return op
		}
	}
	return job
}

// specs builds the worker fleet. The buffer scenario alternates producer
// and consumer roles; everything else is a uniform fleet. Display names
// come from gofakeit so demo output reads like a crowd, not an index.
func (s Scenario) specs(workers, reps, amount int) []worker.Spec {
	out := make([]worker.Spec, workers)
	for i := range out {
		spec := worker.Spec{
			Name:        workerName(i),
			Repetitions: reps,
			Amount:      amount,
		}
		if s.Name == Buffer {
			if i%2 == 0 {
				spec.Role = RoleProducer
			} else {
				spec.Role = RoleConsumer
			}
			spec.Name = spec.Role + "-" + spec.Name
		}
		out[i] = spec
	}
	return out
}

func workerName(i int) string {
	return strings.ToLower(gofakeit.FirstName()) + "-" + strconv.Itoa(i+1)
}
