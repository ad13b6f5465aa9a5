package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"

	"github.com/vietddude/rowstream/internal/health"
	redisclient "github.com/vietddude/rowstream/internal/infra/redis"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/infra/storage/postgres"
	"github.com/vietddude/rowstream/internal/replay"
	"github.com/vietddude/rowstream/internal/write"
)

var deadletterLimit int

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "Inspect and replay permanently failed mutations",
}

var deadletterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead-lettered mutation entries",
	RunE:  runDeadletterList,
}

var deadletterWorkerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the dead-letter replay worker",
	RunE:  runDeadletterWorker,
}

func init() {
	deadletterListCmd.Flags().IntVar(&deadletterLimit, "limit", 50, "max entries to list")
	deadletterCmd.AddCommand(deadletterListCmd)
	deadletterCmd.AddCommand(deadletterWorkerCmd)
}

func runDeadletterList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	ctx := cmd.Context()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := postgres.NewDeadLetterRepo(db)
	letters, err := repo.List(ctx, cfg.Store.Table, deadletterLimit)
	if err != nil {
		return err
	}

	for _, dl := range letters {
		fmt.Printf("%s  row=%q  mutations=%d  attempts=%d  code=%s  %s\n",
			dl.ID,
			dl.RowKey,
			len(dl.Mutations),
			dl.Attempts,
			codes.Code(dl.Status.GetCode()),
			dl.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	slog.Info("Listed dead letters", "count", len(letters))
	return nil
}

func runDeadletterWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	rds, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer rds.Close()

	provider, err := rpc.NewGRPCProvider(ctx, "store", cfg.Store.Endpoint)
	if err != nil {
		return err
	}
	defer provider.Close()

	applier := write.NewBulkApplier(rpc.NewDataClient(provider.Conn()), write.ApplyConfig{
		Table:   cfg.Store.Table,
		Retry:   cfg.Retry.PolicyFactory(),
		Backoff: cfg.Retry.BackoffFactory(),
	})

	worker := replay.NewWorker(replay.WorkerConfig{
		Table:     cfg.Store.Table,
		Interval:  cfg.Replay.Interval,
		BatchSize: cfg.Replay.BatchSize,
	}, applier, postgres.NewDeadLetterRepo(db))

	srv := health.NewServer(cfg.Server.Port, map[string]health.Pinger{
		"database": db,
		"redis":    rds,
	})
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("Health server failed", "error", err)
		}
	}()
	defer srv.Stop(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	return worker.Run(ctx)
}
