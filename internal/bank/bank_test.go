package bank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/gojostm/core/stm"
	"go.uber.org/zap"
)

func setupBank(t *testing.T, balances map[string]int64) (*Bank, *stm.Runtime) {
	t.Helper()
	rt, err := stm.NewRuntime(stm.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	b, err := New(context.Background(), rt, zap.NewNop())
	require.NoError(t, err)
	for name, balance := range balances {
		require.NoError(t, b.Open(context.Background(), name, balance))
	}
	return b, rt
}

func TestBank_OpenAndLookup(t *testing.T) {
	ctx := context.Background()
	b, _ := setupBank(t, map[string]int64{"alice": 100})

	err := b.Open(ctx, "alice", 5)
	require.ErrorIs(t, err, ErrAccountExists)

	err = b.Open(ctx, "bob", -1)
	require.ErrorIs(t, err, ErrNegativeAmount)

	_, err = b.Deposit(ctx, "carol", 1)
	require.ErrorIs(t, err, ErrAccountNotFound)

	names, err := b.Names(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, names)
}

func TestBank_DepositAndWithdraw(t *testing.T) {
	ctx := context.Background()
	b, rt := setupBank(t, map[string]int64{"alice": 100})

	balance, err := b.Deposit(ctx, "alice", 50)
	require.NoError(t, err)
	require.Equal(t, int64(150), balance)

	balance, err = b.Withdraw(ctx, "alice", 120)
	require.NoError(t, err)
	require.Equal(t, int64(30), balance)

	_, err = b.Withdraw(ctx, "alice", -5)
	require.ErrorIs(t, err, ErrNegativeAmount)

	// A withdrawal larger than the balance waits for a deposit.
	done := make(chan int64, 1)
	go func() {
		if v, err := b.Withdraw(ctx, "alice", 100); err == nil {
			done <- v
		}
	}()
	require.Eventually(t, func() bool { return rt.Stats().Parked == 1 }, 5*time.Second, time.Millisecond)

	_, err = b.Deposit(ctx, "alice", 80)
	require.NoError(t, err)
	select {
	case v := <-done:
		require.Equal(t, int64(10), v)
	case <-time.After(5 * time.Second):
		t.Fatal("withdrawal was not woken by the deposit")
	}
}

func TestBank_Transfer(t *testing.T) {
	ctx := context.Background()
	b, _ := setupBank(t, map[string]int64{"alice": 100, "bob": 0})

	require.NoError(t, b.Transfer(ctx, "alice", "bob", 40))
	balances, err := b.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"alice": 60, "bob": 40}, balances)

	err = b.Transfer(ctx, "alice", "alice", 1)
	require.ErrorIs(t, err, ErrSameAccount)

	// An unknown destination aborts without touching the source.
	err = b.Transfer(ctx, "alice", "nobody", 10)
	require.ErrorIs(t, err, ErrAccountNotFound)
	balances, err = b.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(60), balances["alice"])
}

func TestBank_TryTransfer(t *testing.T) {
	ctx := context.Background()
	b, rt := setupBank(t, map[string]int64{"alice": 10, "bob": 0})

	ok, err := b.TryTransfer(ctx, "alice", "bob", 50)
	require.NoError(t, err)
	require.False(t, ok)
	require.Zero(t, rt.Stats().Retries, "try-transfer must not park")

	ok, err = b.TryTransfer(ctx, "alice", "bob", 10)
	require.NoError(t, err)
	require.True(t, ok)

	balances, err := b.Balances(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]int64{"alice": 0, "bob": 10}, balances)

	// Lookup failures are errors, not a "no".
	_, err = b.TryTransfer(ctx, "nobody", "bob", 1)
	require.ErrorIs(t, err, ErrAccountNotFound)
}

func TestBank_LoadPreservesTotal(t *testing.T) {
	ctx := context.Background()
	b, _ := setupBank(t, map[string]int64{"a": 1000, "b": 1000, "c": 1000, "d": 1000})

	for _, blocking := range []bool{false, true} {
		res, err := RunLoad(ctx, b, LoadConfig{Workers: 8, Transfers: 400, MaxAmount: 10, Blocking: blocking, WaitTimeout: 5 * time.Second})
		require.NoError(t, err)
		require.Equal(t, int64(400), res.Committed+res.Skipped)
		if blocking {
			require.Zero(t, res.Skipped)
		}

		total, err := b.Total(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(4000), total)
	}
}

// TestBank_BlockingLoadWithSkewedBalances starts the workers from balances
// where most transfers cannot be covered; waiting workers must give up
// instead of all parking on each other.
func TestBank_BlockingLoadWithSkewedBalances(t *testing.T) {
	b, _ := setupBank(t, map[string]int64{"a": 1, "b": 1000})

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		res, err := RunLoad(ctx, b, LoadConfig{
			Workers:     4,
			Transfers:   200,
			MaxAmount:   100,
			Blocking:    true,
			WaitTimeout: 5 * time.Millisecond,
		})
		cancel()
		require.NoError(t, err, "run %d", i)
		require.Equal(t, int64(200), res.Committed+res.Skipped)

		total, err := b.Total(context.Background())
		require.NoError(t, err)
		require.Equal(t, int64(1001), total)
	}
}

func TestBank_LoadRespectsRateAndCancellation(t *testing.T) {
	b, _ := setupBank(t, map[string]int64{"a": 100, "b": 100})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	res, err := RunLoad(ctx, b, LoadConfig{Workers: 2, Transfers: 1000, Rate: 20, MaxAmount: 5})
	require.Error(t, err)
	require.Less(t, res.Committed+res.Skipped, int64(1000))

	_, err = RunLoad(context.Background(), b, LoadConfig{})
	require.NoError(t, err)

	single, _ := setupBank(t, map[string]int64{"a": 1})
	_, err = RunLoad(context.Background(), single, LoadConfig{Transfers: 1})
	require.Error(t, err)
}
