package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/pkg/errors"
	"github.com/sushant-115/gojostm/core/stm"
	"github.com/sushant-115/gojostm/internal/bank"
	"go.uber.org/zap"
)

var errExit = errors.New("exit")

const helpText = `Commands:
  open <account> <balance>
  deposit <account> <amount>
  withdraw <account> <amount>        waits until the funds are there (Ctrl-C to give up)
  transfer <from> <to> <amount>      waits until <from> can cover <amount>
  try-transfer <from> <to> <amount>  transfers only if <from> can cover <amount> now
  balances
  total
  load [transfers] [rate]            random transfers between all accounts
  stats
  debug on|off
  help
  exit / quit`

// shell runs stmbank commands against a bank.
type shell struct {
	bank  *bank.Bank
	rt    *stm.Runtime
	level zap.AtomicLevel
	load  bank.LoadConfig
	out   io.Writer
}

func (s *shell) loop(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "stmbank> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("open"), readline.PcItem("deposit"), readline.PcItem("withdraw"),
			readline.PcItem("transfer"), readline.PcItem("try-transfer"), readline.PcItem("balances"),
			readline.PcItem("total"), readline.PcItem("load"), readline.PcItem("stats"),
			readline.PcItem("debug", readline.PcItem("on"), readline.PcItem("off")),
			readline.PcItem("help"), readline.PcItem("exit"),
		),
	})
	if err != nil {
		return errors.Wrap(err, "failed to start shell")
	}
	// A cancelled ctx (SIGTERM) unblocks a pending Readline.
	stopClose := context.AfterFunc(ctx, func() { rl.Close() })
	defer func() {
		if stopClose() {
			rl.Close()
		}
	}()
	s.out = rl.Stdout()

	fmt.Fprintln(s.out, "stmbank shell. Type 'help' for commands, 'exit' or 'quit' to leave.")
	for ctx.Err() == nil {
		line, err := rl.Readline()
		switch {
		case ctx.Err() != nil:
			return nil
		case err == readline.ErrInterrupt:
			continue
		case err == io.EOF:
			return nil
		case err != nil:
			return err
		}

		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if err := s.runCommand(ctx, args); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(s.out, "Error: %v\n", err)
		}
	}
	return nil
}

// runCommand runs one shell command under its own interrupt handler: Ctrl-C
// cancels a command that is waiting (for funds, or a long load) and returns
// to the prompt, leaving ctx untouched.
func (s *shell) runCommand(ctx context.Context, args []string) error {
	cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return s.execute(cmdCtx, args)
}

// execute runs one command. Blocking commands are cancelled by ctx.
func (s *shell) execute(ctx context.Context, args []string) error {
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "open":
		if len(args) != 2 {
			return errors.New("usage: open <account> <balance>")
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		if err := s.bank.Open(ctx, args[0], amount); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "opened %s with %d\n", args[0], amount)

	case "deposit", "withdraw":
		if len(args) != 2 {
			return errors.Errorf("usage: %s <account> <amount>", cmd)
		}
		amount, err := parseAmount(args[1])
		if err != nil {
			return err
		}
		op := s.bank.Deposit
		if cmd == "withdraw" {
			op = s.bank.Withdraw
		}
		balance, err := op(ctx, args[0], amount)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "%s: %d\n", args[0], balance)

	case "transfer", "try-transfer":
		if len(args) != 3 {
			return errors.Errorf("usage: %s <from> <to> <amount>", cmd)
		}
		amount, err := parseAmount(args[2])
		if err != nil {
			return err
		}
		if cmd == "transfer" {
			if err := s.bank.Transfer(ctx, args[0], args[1], amount); err != nil {
				return err
			}
			fmt.Fprintf(s.out, "moved %d from %s to %s\n", amount, args[0], args[1])
			return nil
		}
		ok, err := s.bank.TryTransfer(ctx, args[0], args[1], amount)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintf(s.out, "%s cannot cover %d, nothing moved\n", args[0], amount)
			return nil
		}
		fmt.Fprintf(s.out, "moved %d from %s to %s\n", amount, args[0], args[1])

	case "balances":
		balances, err := s.bank.Balances(ctx)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(balances))
		for name := range balances {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(s.out, "%-16s %d\n", name, balances[name])
		}

	case "total":
		total, err := s.bank.Total(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "total: %d\n", total)

	case "load":
		cfg := s.load
		if len(args) > 0 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 0 {
				return errors.Errorf("invalid transfer count %q", args[0])
			}
			cfg.Transfers = n
		}
		if len(args) > 1 {
			r, err := strconv.ParseFloat(args[1], 64)
			if err != nil || r < 0 {
				return errors.Errorf("invalid rate %q", args[1])
			}
			cfg.Rate = r
		}
		res, err := bank.RunLoad(ctx, s.bank, cfg)
		fmt.Fprintf(s.out, "committed %d, skipped %d in %s\n", res.Committed, res.Skipped, res.Elapsed)
		if err != nil {
			return err
		}

	case "stats":
		st := s.rt.Stats()
		fmt.Fprintf(s.out, "commits=%d conflicts=%d retries=%d wakeups=%d aborts=%d parked=%d\n",
			st.Commits, st.Conflicts, st.Retries, st.Wakeups, st.Aborts, st.Parked)

	case "debug":
		if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
			return errors.New("usage: debug on|off")
		}
		if args[0] == "on" {
			s.level.SetLevel(zap.DebugLevel)
		} else {
			s.level.SetLevel(zap.InfoLevel)
		}

	case "help":
		fmt.Fprintln(s.out, helpText)

	case "exit", "quit":
		return errExit

	default:
		return errors.Errorf("unknown command %q, type 'help' for a list of commands", cmd)
	}
	return nil
}

func parseAmount(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	return v, nil
}
