package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerLockOptions_ForwardedPolicy(t *testing.T) {
	workerAttempts = 500
	workerRetry = "5ms"
	t.Cleanup(func() { workerAttempts = 0; workerRetry = "" })

	opts, err := workerLockOptions()
	require.NoError(t, err)
	assert.Equal(t, 500, opts.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, opts.RetryDelay)
}

func TestWorkerLockOptions_DefaultsWhenUnset(t *testing.T) {
	workerAttempts = 0
	workerRetry = ""

	opts, err := workerLockOptions()
	require.NoError(t, err)

	// Zero values defer to the lockfile package defaults inside New.
	assert.Zero(t, opts.MaxAttempts)
	assert.Zero(t, opts.RetryDelay)
}

func TestWorkerLockOptions_RejectsMalformedRetry(t *testing.T) {
	workerRetry = "not-a-duration"
	t.Cleanup(func() { workerRetry = "" })

	_, err := workerLockOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock-retry")
}

func TestParseWorkerDelay(t *testing.T) {
	workerDelayMin = "2ms"
	workerDelayMax = "8ms"
	t.Cleanup(func() { workerDelayMin = ""; workerDelayMax = "" })

	d, err := parseWorkerDelay()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, d.Min)
	assert.Equal(t, 8*time.Millisecond, d.Max)
}

func TestParseWorkerDelay_RejectsMalformed(t *testing.T) {
	workerDelayMin = "soon"
	t.Cleanup(func() { workerDelayMin = "" })

	_, err := parseWorkerDelay()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delay-min")
}
