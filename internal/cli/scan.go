package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vietddude/rowstream/internal/core/domain"
	redisclient "github.com/vietddude/rowstream/internal/infra/redis"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/read"
)

var (
	scanStart      string
	scanEnd        string
	scanKeys       []string
	scanLimit      int64
	scanCheckpoint string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan rows from the store and print them",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanStart, "start", "", "inclusive start row key")
	scanCmd.Flags().StringVar(&scanEnd, "end", "", "exclusive end row key")
	scanCmd.Flags().StringArrayVar(&scanKeys, "key", nil, "explicit row key (repeatable)")
	scanCmd.Flags().Int64Var(&scanLimit, "limit", 0, "max rows to read (0 = unlimited)")
	scanCmd.Flags().StringVar(&scanCheckpoint, "checkpoint", "", "named checkpoint to resume from (requires redis)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	provider, err := rpc.NewGRPCProvider(ctx, "store", cfg.Store.Endpoint)
	if err != nil {
		return err
	}
	defer provider.Close()

	var rows domain.RowSet
	for _, k := range scanKeys {
		rows.Keys = append(rows.Keys, []byte(k))
	}
	if scanStart != "" || scanEnd != "" {
		rows.Ranges = append(rows.Ranges, domain.RowRange{
			Start: []byte(scanStart),
			End:   []byte(scanEnd),
			// End is exclusive on the command line.
			EndOpen: scanEnd != "",
		})
	}

	scanCfg := read.ScanConfig{
		Table:     cfg.Store.Table,
		Rows:      rows,
		RowsLimit: scanLimit,
		Retry:     cfg.Retry.PolicyFactory(),
		Backoff:   cfg.Retry.BackoffFactory(),
	}

	client := rpc.NewDataClient(provider.Conn())

	var next func(context.Context) (*domain.Row, error)
	var cancelScan func()

	if scanCheckpoint != "" {
		rds, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer rds.Close()
		store := redisclient.NewCheckpointRepo(rds, cfg.Scan.CheckpointTTL)
		reader, err := read.NewCheckpointedReader(
			ctx, client, scanCfg, store, scanCheckpoint, cfg.Scan.CheckpointRows,
		)
		if err != nil {
			return err
		}
		next = reader.Next
		cancelScan = reader.Cancel
	} else {
		reader := read.NewReader(client, scanCfg)
		next = reader.Next
		cancelScan = reader.Cancel
	}

	// Interrupt cancels the in-flight scan.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("Interrupted, cancelling scan")
		cancelScan()
	}()

	count := 0
	for {
		row, err := next(ctx)
		if err != nil {
			if errors.Is(err, read.Done) {
				slog.Info("Scan finished", "rows", count)
				return nil
			}
			if errors.Is(err, read.ErrCancelled) {
				slog.Info("Scan cancelled", "rows", count)
				return nil
			}
			return err
		}
		count++
		printRow(row)
	}
}

func printRow(row *domain.Row) {
	fmt.Printf("%q\n", row.Key)
	for _, c := range row.Cells {
		fmt.Printf("  %s:%q @%d = %q\n", c.Family, c.Qualifier, c.TimestampMicros, c.Value())
	}
}
