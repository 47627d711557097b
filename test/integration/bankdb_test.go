//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahm4dd/ipc-race/internal/bankdb"
	"github.com/ahm4dd/ipc-race/internal/worker"
	"github.com/ahm4dd/ipc-race/test/integration/testutil"
)

// startBank brings up a Postgres container and returns an open Bank
// against it. The container is torn down with the test.
func startBank(t *testing.T) *bankdb.Bank {
	t.Helper()

	ctx := context.Background()
	pg, err := testutil.StartPostgres(ctx)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		_ = pg.Terminate(context.Background())
	})

	b, err := bankdb.Open(pg.DSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	require.NoError(t, b.Ping(pingCtx))

	return b
}

func TestBank_SetupAndBalance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	b := startBank(t)
	ctx := context.Background()

	require.NoError(t, b.Setup(ctx, 1000))
	defer func() { _ = b.Teardown(ctx) }()

	balance, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, balance)

	// Setup reseeds an existing account.
	require.NoError(t, b.Setup(ctx, 500))
	balance, err = b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 500, balance)
}

func TestBank_WithdrawRejectsInsufficientFunds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	b := startBank(t)
	ctx := context.Background()

	require.NoError(t, b.Setup(ctx, 200))
	defer func() { _ = b.Teardown(ctx) }()

	ok, err := b.Withdraw(ctx, 300, worker.Delay{})
	require.NoError(t, err)
	assert.False(t, ok, "withdrawal above balance must be rejected")

	balance, err := b.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, balance, "rejected withdrawal must not touch the balance")
}

func TestDemo_TransactionalNeverOverdraws(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	b := startBank(t)
	ctx := context.Background()

	out, err := bankdb.Demo(ctx, b, bankdb.DemoConfig{
		Initial:       1000,
		Amount:        300,
		Workers:       4,
		Hold:          worker.Delay{Min: 100 * time.Millisecond, Max: 100 * time.Millisecond},
		Transactional: true,
	})
	require.NoError(t, err)

	assert.Zero(t, out.Failed, "no withdrawal should error")
	assert.Equal(t, 3, out.Succeeded, "1000 covers exactly three withdrawals of 300")
	assert.Equal(t, 1, out.Rejected)
	assert.Equal(t, 100, out.Final)
	assert.True(t, out.InvariantHeld)
	assert.False(t, out.RaceDetected)

	res := out.Result()
	assert.True(t, res.Success)
}

func TestDemo_TransactionalArithmeticHolds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	b := startBank(t)
	ctx := context.Background()

	// More contenders than the balance covers; FOR UPDATE serializes
	// them so the books still balance exactly.
	out, err := bankdb.Demo(ctx, b, bankdb.DemoConfig{
		Initial:       500,
		Amount:        200,
		Workers:       8,
		Hold:          worker.Delay{Min: 50 * time.Millisecond, Max: 50 * time.Millisecond},
		Transactional: true,
	})
	require.NoError(t, err)

	assert.Zero(t, out.Failed)
	assert.Equal(t, out.Initial-out.Succeeded*out.Amount, out.Final)
	assert.GreaterOrEqual(t, out.Final, 0, "transactional path must never overdraw")
	assert.False(t, out.RaceDetected)
}
