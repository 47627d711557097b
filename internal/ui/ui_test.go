package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ahm4dd/ipc-race/internal/harness"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

func TestRenderResult(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out := RenderResult(harness.Result{
			Success: true,
			Message: "state verified: no race observed",
			Summary: "initial=0 expected=100 actual=100 lost=0",
		})
		assert.Contains(t, out, "✓")
		assert.Contains(t, out, "no race observed")
		assert.Contains(t, out, "actual=100")
	})

	t.Run("race", func(t *testing.T) {
		out := RenderResult(harness.Result{
			Message: "race detected: 60 update(s) lost",
		})
		assert.Contains(t, out, "✗")
	})

	t.Run("inconclusive", func(t *testing.T) {
		out := RenderResult(harness.Result{
			Message: "inconclusive: 1 worker(s) failed",
		})
		assert.Contains(t, out, "⚠")
	})
}

func TestRenderReport(t *testing.T) {
	rep := &harness.Report{
		Job: harness.Job{
			Scenario: "counter",
			Mode:     harness.ModeCounter,
			Locked:   true,
			Specs:    []worker.Spec{{Name: "ada-1"}, {Name: "grace-2"}},
		},
		Results: []harness.WorkerResult{
			{Spec: worker.Spec{Name: "ada-1"}, Outcome: worker.Outcome{Completed: 20}},
			{Spec: worker.Spec{Name: "grace-2"}, Err: errors.New("lock held by another process")},
		},
	}
	rep.Verification = harness.Verification{InvariantHeld: true, Inconclusive: true, Failed: 1}

	out := RenderReport(rep)
	assert.Contains(t, out, "counter")
	assert.Contains(t, out, "locked")
	assert.Contains(t, out, "ada-1")
	assert.Contains(t, out, "lock held")
	assert.Contains(t, out, "2 workers")
}
