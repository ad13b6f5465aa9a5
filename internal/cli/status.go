package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/rowstream/internal/infra/redis"
	"github.com/vietddude/rowstream/internal/infra/rpc"
	"github.com/vietddude/rowstream/internal/infra/storage/postgres"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the health of the store connection and its backing services",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := cmd.Context()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "COMPONENT\tSTATUS\tDETAIL")

	provider, err := rpc.NewGRPCProvider(ctx, "store", cfg.Store.Endpoint)
	if err != nil {
		_, _ = fmt.Fprintf(w, "store\tdown\t%v\n", err)
	} else {
		_, _ = fmt.Fprintf(w, "store\tok\t%s\n", cfg.Store.Endpoint)
		_ = provider.Close()
	}

	rds, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		_, _ = fmt.Fprintf(w, "redis\tdown\t%v\n", err)
	} else {
		if err := rds.Health(ctx); err != nil {
			_, _ = fmt.Fprintf(w, "redis\tdown\t%v\n", err)
		} else {
			_, _ = fmt.Fprintln(w, "redis\tok\t")
		}
		_ = rds.Close()
	}

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		_, _ = fmt.Fprintf(w, "database\tdown\t%v\n", err)
		_ = w.Flush()
		return
	}
	defer func() {
		_ = db.Close()
	}()

	var backlog int
	err = db.GetContext(ctx, &backlog,
		"SELECT COUNT(*) FROM dead_letters WHERE table_name = $1", cfg.Store.Table)
	if err != nil {
		_, _ = fmt.Fprintf(w, "database\tdown\t%v\n", err)
	} else {
		_, _ = fmt.Fprintf(w, "database\tok\t%d dead letters for %s\n", backlog, cfg.Store.Table)
	}
	_ = w.Flush()
}
