// Command ledgerctl triggers ledger maintenance jobs and inspects the queue.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/odyssey-erp/ledger/internal/app"
)

const usage = `usage: ledgerctl <command>

commands:
  trigger <job>   enqueue ledger:idempotency_cleanup or ledger:gl_integrity
  queue           show default queue counters
`

func main() {
	if app.InTestMode() {
		return
	}
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	cli := NewJobsCLI(cfg.RedisAddr)
	defer func() { _ = cli.Close() }()
	os.Exit(run(context.Background(), cli, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, cli *JobsCLI, args []string, out, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(errOut, usage)
		return 2
	}
	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			fmt.Fprint(errOut, usage)
			return 2
		}
		info, err := cli.Trigger(ctx, args[1])
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "queue":
		stats, err := cli.InspectQueue()
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		fmt.Fprint(errOut, usage)
		return 2
	}
}
