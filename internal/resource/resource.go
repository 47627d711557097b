// Package resource provides the durable resource store that workers
// contend on: a single named integer value with bookkeeping fields,
// persisted as a YAML file and fully rewritten on every write.
//
// The store deliberately provides no synchronization of its own. Each Read
// and each Write is individually whole-value (a worker can observe a stale
// record but never a half-written one); the gap between a worker's Read
// and its Write is exactly the race window being demonstrated.
package resource

import (
	"errors"
	"fmt"
	"time"
)

// DefaultFilename is the default resource artifact filename.
const DefaultFilename = "resource.yaml"

// Errors.
var (
	// ErrNotInitialized means the artifact was read before Init, or was
	// deleted mid-run. Mid-run absence is a teardown-ordering bug, not an
	// expected condition, so it is surfaced rather than zero-defaulted.
	ErrNotInitialized = errors.New("resource not initialized")
	ErrCorrupt        = errors.New("resource artifact corrupt")
)

// Record is the contended state plus human-observable bookkeeping.
// LastWriter and UpdatedAt exist only as proof of who touched the value
// last; no correctness logic may depend on them.
type Record struct {
	Value      int    `yaml:"value"`
	LastWriter string `yaml:"last_writer,omitempty"`
	UpdatedAt  string `yaml:"updated_at,omitempty"` // RFC3339Nano
}

// Stamp fills the bookkeeping fields for a write by the given worker.
func (r *Record) Stamp(writer string) {
	r.LastWriter = writer
	r.UpdatedAt = time.Now().Format(time.RFC3339Nano)
}

// Store is the durable resource a harness run revolves around. Its
// lifecycle is scoped to one run: Init before the workers start, Teardown
// after verification, nothing survives across runs.
type Store interface {
	// Init writes the starting state, fully overwriting anything stale
	// from a previous run.
	Init(value int) error
	// Read returns the current record. Returns ErrNotInitialized when the
	// artifact is absent.
	Read() (Record, error)
	// Write replaces the whole record.
	Write(rec Record) error
	// Teardown removes the artifact. Idempotent.
	Teardown() error
}

// initRecord builds the record Init writes.
func initRecord(value int) Record {
	rec := Record{Value: value}
	rec.Stamp("init")
	return rec
}

func corrupt(err error) error {
	return fmt.Errorf("%w: %w", ErrCorrupt, err)
}
