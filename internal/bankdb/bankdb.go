// Package bankdb is the SQL counterpart of the file-based bank scenario:
// mutual exclusion is delegated entirely to the database's transaction
// boundary instead of the marker-file lock. BEGIN precedes every read and
// write of a withdrawal cycle, COMMIT makes the cycle durable atomically,
// and ROLLBACK undoes it on failure or insufficient funds. The
// verification step is the same expected-vs-actual arithmetic the file
// harness uses.
package bankdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver

	"github.com/ahm4dd/ipc-race/internal/harness"
	"github.com/ahm4dd/ipc-race/internal/worker"
)

// accountID is the single contended row.
const accountID = 1

// ErrNoAccount means the demo table was not set up before use.
var ErrNoAccount = errors.New("account row missing: setup not run")

// Bank wraps the database connection for the demo.
type Bank struct {
	db *sql.DB
}

// Open connects to Postgres with the pgx database/sql driver.
func Open(dsn string) (*Bank, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &Bank{db: db}, nil
}

// Ping verifies the connection.
func (b *Bank) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Close releases the connection pool.
func (b *Bank) Close() error {
	return b.db.Close()
}

// Setup creates the accounts table and resets the contended row to the
// initial balance, clobbering anything stale from a previous run.
func (b *Bank) Setup(ctx context.Context, initial int) error {
	const ddl = `CREATE TABLE IF NOT EXISTS accounts (
		id      INT PRIMARY KEY,
		balance BIGINT NOT NULL
	)`
	if _, err := b.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	const upsert = `INSERT INTO accounts (id, balance) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET balance = EXCLUDED.balance`
	if _, err := b.db.ExecContext(ctx, upsert, accountID, initial); err != nil {
		return fmt.Errorf("seed account: %w", err)
	}
	return nil
}

// Teardown drops the demo table.
func (b *Bank) Teardown(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, `DROP TABLE IF EXISTS accounts`); err != nil {
		return fmt.Errorf("drop table: %w", err)
	}
	return nil
}

// Balance reads the current balance.
func (b *Bank) Balance(ctx context.Context) (int, error) {
	var balance int
	err := b.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoAccount
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// Withdraw performs one check-then-act withdrawal inside a transaction.
// SELECT ... FOR UPDATE takes the row lock, so the check and the act are
// one atomic unit from any other transaction's point of view. Returns
// false when the funds are insufficient (the transaction rolls back and
// nothing is written).
func (b *Bank) Withdraw(ctx context.Context, amount int, hold worker.Delay) (ok bool, err error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil || !ok {
			_ = tx.Rollback() //nolint:errcheck // Rollback after failure is best effort
		}
	}()

	var balance int
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNoAccount
	}
	if err != nil {
		return false, fmt.Errorf("check balance: %w", err)
	}

	if balance < amount {
		return false, nil
	}

	// The hold widens the check-to-act window. Here it is harmless: the
	// row lock keeps every other withdrawal waiting at its SELECT.
	hold.Sleep()

	if _, err = tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, balance-amount, accountID); err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// WithdrawRacy is the contrast case: the check and the act run as two
// autocommit statements with nothing tying them together. The balance
// approved by the check may be stale by the time the blind overwrite
// lands, which is exactly the lost-update the transactional path
// prevents.
func (b *Bank) WithdrawRacy(ctx context.Context, amount int, hold worker.Delay) (bool, error) {
	var balance int
	err := b.db.QueryRowContext(ctx,
		`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNoAccount
	}
	if err != nil {
		return false, fmt.Errorf("check balance: %w", err)
	}

	if balance < amount {
		return false, nil
	}

	hold.Sleep()

	if _, err := b.db.ExecContext(ctx,
		`UPDATE accounts SET balance = $1 WHERE id = $2`, balance-amount, accountID); err != nil {
		return false, fmt.Errorf("debit: %w", err)
	}
	return true, nil
}

// Outcome is the verification record of one SQL demo run.
type Outcome struct {
	Initial       int
	Final         int
	Amount        int
	Succeeded     int
	Rejected      int
	Failed        int
	InvariantHeld bool
	RaceDetected  bool
}

// Demo runs K concurrent withdrawals against a freshly seeded account and
// certifies the outcome. Transactional selects the BEGIN/COMMIT path;
// otherwise the racy two-statement path runs. Teardown happens on every
// path.
func Demo(ctx context.Context, b *Bank, cfg DemoConfig) (out Outcome, err error) {
	defer func() {
		if terr := b.Teardown(context.WithoutCancel(ctx)); terr != nil && err == nil {
			err = terr
		}
	}()

	if err := b.Setup(ctx, cfg.Initial); err != nil {
		return Outcome{}, err
	}

	out = Outcome{Initial: cfg.Initial, Amount: cfg.Amount}

	type result struct {
		ok  bool
		err error
	}
	results := make([]result, cfg.Workers)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var r result
			if cfg.Transactional {
				r.ok, r.err = b.Withdraw(ctx, cfg.Amount, cfg.Hold)
			} else {
				r.ok, r.err = b.WithdrawRacy(ctx, cfg.Amount, cfg.Hold)
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		switch {
		case r.err != nil:
			out.Failed++
		case r.ok:
			out.Succeeded++
		default:
			out.Rejected++
		}
	}

	final, err := b.Balance(ctx)
	if err != nil {
		return out, err
	}
	out.Final = final

	out.InvariantHeld = final >= 0
	out.RaceDetected = !out.InvariantHeld ||
		cfg.Initial-final != out.Succeeded*cfg.Amount
	return out, nil
}

// DemoConfig parameterizes one SQL demo run.
type DemoConfig struct {
	Initial       int
	Amount        int
	Workers       int
	Hold          worker.Delay
	Transactional bool
}

// Result folds the outcome into the shared presentation contract.
func (o Outcome) Result() harness.Result {
	var msg string
	switch {
	case o.Failed > 0:
		msg = fmt.Sprintf("inconclusive: %d withdrawal(s) failed", o.Failed)
	case o.RaceDetected:
		msg = "race detected: balance inconsistent with committed withdrawals"
	default:
		msg = "balance verified: transactions serialized the withdrawals"
	}
	return harness.Result{
		Success: !o.RaceDetected && o.Failed == 0,
		Message: msg,
		Summary: fmt.Sprintf("initial=%d final=%d succeeded=%d rejected=%d invariant_held=%t",
			o.Initial, o.Final, o.Succeeded, o.Rejected, o.InvariantHeld),
	}
}
