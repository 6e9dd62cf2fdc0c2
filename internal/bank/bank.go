// Package bank keeps named accounts in TVars and moves money between them
// with stm transactions.
package bank

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sushant-115/gojostm/core/stm"
	"go.uber.org/zap"
)

var (
	ErrAccountNotFound = errors.New("bank: account not found")
	ErrAccountExists   = errors.New("bank: account already exists")
	ErrNegativeAmount  = errors.New("bank: negative amount")
	ErrSameAccount     = errors.New("bank: source and destination are the same account")
)

type accounts = map[string]*stm.TVar[int64]

// Bank is a set of named accounts. The set itself is a TVar, so opening an
// account is atomic with respect to every other operation.
type Bank struct {
	rt       *stm.Runtime
	logger   *zap.Logger
	registry *stm.TVar[accounts]
}

// New creates an empty bank whose operations commit on rt.
func New(ctx context.Context, rt *stm.Runtime, logger *zap.Logger) (*Bank, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry, err := stm.Commit(ctx, rt, stm.NewTVar(accounts{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create account registry")
	}
	return &Bank{rt: rt, logger: logger.Named("bank"), registry: registry}, nil
}

// lookup finds an account, aborting with ErrAccountNotFound.
func (b *Bank) lookup(name string) stm.Txn[*stm.TVar[int64]] {
	return stm.Bind(b.registry.Get(), func(m accounts) stm.Txn[*stm.TVar[int64]] {
		acc, ok := m[name]
		if !ok {
			return stm.Abort[*stm.TVar[int64]](errors.Wrapf(ErrAccountNotFound, "account %q", name))
		}
		return stm.Pure(acc)
	})
}

func checkAmount(amount int64) error {
	if amount < 0 {
		return errors.Wrapf(ErrNegativeAmount, "amount %d", amount)
	}
	return nil
}

// OpenTxn returns a program that creates account name with balance initial.
func (b *Bank) OpenTxn(name string, initial int64) stm.Txn[stm.Unit] {
	if err := checkAmount(initial); err != nil {
		return stm.Abort[stm.Unit](err)
	}
	return stm.Bind(b.registry.Get(), func(m accounts) stm.Txn[stm.Unit] {
		if _, ok := m[name]; ok {
			return stm.Abort[stm.Unit](errors.Wrapf(ErrAccountExists, "account %q", name))
		}
		return stm.Bind(stm.NewTVar(initial), func(acc *stm.TVar[int64]) stm.Txn[stm.Unit] {
			next := make(accounts, len(m)+1)
			for k, v := range m {
				next[k] = v
			}
			next[name] = acc
			return b.registry.Set(next)
		})
	})
}

// DepositTxn returns a program that adds amount to name and yields the new
// balance.
func (b *Bank) DepositTxn(name string, amount int64) stm.Txn[int64] {
	if err := checkAmount(amount); err != nil {
		return stm.Abort[int64](err)
	}
	return stm.Bind(b.lookup(name), func(acc *stm.TVar[int64]) stm.Txn[int64] {
		return stm.Bind(acc.Get(), func(balance int64) stm.Txn[int64] {
			return stm.Then(acc.Set(balance+amount), stm.Pure(balance+amount))
		})
	})
}

// WithdrawTxn returns a program that takes amount from name and yields the
// new balance. It retries until the balance covers amount.
func (b *Bank) WithdrawTxn(name string, amount int64) stm.Txn[int64] {
	if err := checkAmount(amount); err != nil {
		return stm.Abort[int64](err)
	}
	return stm.Bind(b.lookup(name), func(acc *stm.TVar[int64]) stm.Txn[int64] {
		return stm.Bind(acc.Get(), func(balance int64) stm.Txn[int64] {
			return stm.Then(stm.Check(balance >= amount),
				stm.Then(acc.Set(balance-amount), stm.Pure(balance-amount)))
		})
	})
}

// TransferTxn returns a program that moves amount from one account to
// another, retrying until the source has enough funds.
func (b *Bank) TransferTxn(from, to string, amount int64) stm.Txn[stm.Unit] {
	if from == to {
		return stm.Abort[stm.Unit](errors.Wrapf(ErrSameAccount, "account %q", from))
	}
	return stm.Bind(b.lookup(to), func(*stm.TVar[int64]) stm.Txn[stm.Unit] {
		return stm.Void(stm.Then(b.WithdrawTxn(from, amount), b.DepositTxn(to, amount)))
	})
}

// TryTransferTxn is TransferTxn that yields false instead of waiting for
// funds.
func (b *Bank) TryTransferTxn(from, to string, amount int64) stm.Txn[bool] {
	return stm.OrElse(
		stm.Then(b.TransferTxn(from, to, amount), stm.Pure(true)),
		stm.Pure(false),
	)
}

// BalancesTxn returns a program that reads every balance in one snapshot.
func (b *Bank) BalancesTxn() stm.Txn[map[string]int64] {
	return stm.Bind(b.registry.Get(), func(m accounts) stm.Txn[map[string]int64] {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		reads := make([]stm.Txn[int64], len(names))
		for i, name := range names {
			reads[i] = m[name].Get()
		}
		return stm.Map(stm.Sequence(reads...), func(balances []int64) map[string]int64 {
			out := make(map[string]int64, len(names))
			for i, name := range names {
				out[name] = balances[i]
			}
			return out
		})
	})
}

// TotalTxn returns a program that sums every balance.
func (b *Bank) TotalTxn() stm.Txn[int64] {
	return stm.Map(b.BalancesTxn(), func(balances map[string]int64) int64 {
		var total int64
		for _, v := range balances {
			total += v
		}
		return total
	})
}

// Open creates an account.
func (b *Bank) Open(ctx context.Context, name string, initial int64) error {
	if _, err := stm.Commit(ctx, b.rt, b.OpenTxn(name, initial)); err != nil {
		return err
	}
	b.logger.Info("Account opened", zap.String("account", name), zap.Int64("balance", initial))
	return nil
}

// Deposit adds amount to an account and returns the new balance.
func (b *Bank) Deposit(ctx context.Context, name string, amount int64) (int64, error) {
	return stm.Commit(ctx, b.rt, b.DepositTxn(name, amount))
}

// Withdraw takes amount from an account, waiting until the funds are there.
func (b *Bank) Withdraw(ctx context.Context, name string, amount int64) (int64, error) {
	return stm.Commit(ctx, b.rt, b.WithdrawTxn(name, amount))
}

// Transfer moves amount between accounts, waiting until the source has
// enough funds.
func (b *Bank) Transfer(ctx context.Context, from, to string, amount int64) error {
	_, err := stm.Commit(ctx, b.rt, b.TransferTxn(from, to, amount))
	return err
}

// TryTransfer moves amount between accounts if the source has enough funds
// right now and reports whether it did.
func (b *Bank) TryTransfer(ctx context.Context, from, to string, amount int64) (bool, error) {
	return stm.Commit(ctx, b.rt, b.TryTransferTxn(from, to, amount))
}

// Balances returns a consistent snapshot of every account.
func (b *Bank) Balances(ctx context.Context) (map[string]int64, error) {
	return stm.Commit(ctx, b.rt, b.BalancesTxn())
}

// Total returns the sum of every balance.
func (b *Bank) Total(ctx context.Context) (int64, error) {
	return stm.Commit(ctx, b.rt, b.TotalTxn())
}

// Names returns the sorted account names.
func (b *Bank) Names(ctx context.Context) ([]string, error) {
	return stm.Commit(ctx, b.rt, stm.Map(b.registry.Get(), func(m accounts) []string {
		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)
		return names
	}))
}
