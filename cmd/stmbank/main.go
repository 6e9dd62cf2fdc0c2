package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sushant-115/gojostm/config"
	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/internal/bank"
	"github.com/sushant-115/gojostm/pkg/logger"
	"github.com/sushant-115/gojostm/pkg/telemetry"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file; defaults are used when empty")
	runLoad    = flag.Bool("load", false, "Run the configured transfer load and exit instead of starting the shell")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
	}

	zlogger, level, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zlogger.Sync()

	if err := run(cfg, zlogger, level); err != nil {
		zlogger.Error("stmbank exited with error", zap.Error(err))
		zlogger.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, zlogger *zap.Logger, level zap.AtomicLevel) error {
	// In the shell, Ctrl-C cancels only the running command (see
	// shell.runCommand); SIGTERM stops the process in both modes.
	signals := []os.Signal{syscall.SIGTERM}
	if *runLoad {
		signals = append(signals, os.Interrupt)
	}
	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	tel, err := telemetry.New(cfg.Telemetry, zlogger.Named("telemetry"))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			zlogger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	rt, err := stm.NewRuntime(
		stm.WithLogger(zlogger),
		stm.WithMeter(tel.Meter),
		stm.WithTracer(tel.Tracer),
		stm.WithMaxConflicts(cfg.STM.MaxConflicts),
	)
	if err != nil {
		return err
	}

	b, err := bank.New(ctx, rt, zlogger)
	if err != nil {
		return err
	}
	for _, acc := range cfg.Bank.Accounts {
		if err := b.Open(ctx, acc.Name, acc.Balance); err != nil {
			return err
		}
	}

	sh := &shell{bank: b, rt: rt, level: level, load: cfg.Load, out: os.Stdout}
	if *runLoad {
		return sh.execute(ctx, []string{"load"})
	}
	return sh.loop(ctx)
}
