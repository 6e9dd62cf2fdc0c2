package bank

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// LoadConfig describes a random transfer workload.
type LoadConfig struct {
	// Workers is the number of goroutines issuing transfers.
	Workers int `yaml:"workers"`
	// Transfers is the total number of transfers to attempt.
	Transfers int `yaml:"transfers"`
	// Rate caps transfers per second across all workers. Zero is unlimited.
	Rate float64 `yaml:"rate"`
	// MaxAmount bounds the amount of a single transfer.
	MaxAmount int64 `yaml:"max_amount"`
	// Blocking makes workers wait for funds instead of skipping the transfer.
	Blocking bool `yaml:"blocking"`
	// WaitTimeout bounds how long a blocking transfer waits for funds before
	// it is skipped. Money only moves through the workers themselves, so
	// without a bound they can all end up waiting on each other.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// DefaultWaitTimeout is used when LoadConfig.WaitTimeout is not set.
const DefaultWaitTimeout = 100 * time.Millisecond

// LoadResult summarises a finished workload.
type LoadResult struct {
	Committed int64
	Skipped   int64
	Elapsed   time.Duration
}

// RunLoad issues cfg.Transfers random transfers between the bank's accounts.
// It stops at the first error, including cancellation of ctx.
func RunLoad(ctx context.Context, b *Bank, cfg LoadConfig) (LoadResult, error) {
	names, err := b.Names(ctx)
	if err != nil {
		return LoadResult{}, err
	}
	if len(names) < 2 {
		return LoadResult{}, errors.New("bank: load needs at least two accounts")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAmount <= 0 {
		cfg.MaxAmount = 1
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, cfg.Workers)

	var (
		issued    atomic.Int64
		committed atomic.Int64
		skipped   atomic.Int64
	)
	start := time.Now()
	b.logger.Info("Starting transfer load",
		zap.Int("workers", cfg.Workers),
		zap.Int("transfers", cfg.Transfers),
		zap.Float64("rate", cfg.Rate),
		zap.Bool("blocking", cfg.Blocking))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(w)))
		g.Go(func() error {
			for issued.Add(1) <= int64(cfg.Transfers) {
				if err := limiter.Wait(gctx); err != nil {
					return err
				}
				i := rnd.Intn(len(names))
				j := rnd.Intn(len(names) - 1)
				if j >= i {
					j++
				}
				amount := rnd.Int63n(cfg.MaxAmount) + 1

				if cfg.Blocking {
					tctx, cancel := context.WithTimeout(gctx, cfg.WaitTimeout)
					err := b.Transfer(tctx, names[i], names[j], amount)
					cancel()
					switch {
					case err == nil:
						committed.Add(1)
					case gctx.Err() == nil && errors.Is(err, context.DeadlineExceeded):
						skipped.Add(1)
					default:
						return err
					}
					continue
				}
				ok, err := b.TryTransfer(gctx, names[i], names[j], amount)
				if err != nil {
					return err
				}
				if ok {
					committed.Add(1)
				} else {
					skipped.Add(1)
				}
			}
			return nil
		})
	}
	err = g.Wait()

	res := LoadResult{Committed: committed.Load(), Skipped: skipped.Load(), Elapsed: time.Since(start)}
	b.logger.Info("Transfer load finished",
		zap.Int64("committed", res.Committed),
		zap.Int64("skipped", res.Skipped),
		zap.Duration("elapsed", res.Elapsed),
		zap.Error(err))
	return res, err
}
