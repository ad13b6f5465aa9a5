package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/rowstream/internal/core/domain"
	"github.com/vietddude/rowstream/internal/infra/rpc"
)

var (
	putFamily    string
	putQualifier string
	putValue     string
	putTimestamp int64
	putDeleteRow bool
)

var putCmd = &cobra.Command{
	Use:   "put <row-key>",
	Short: "Write a single cell to a row, or delete the row",
	Args:  cobra.ExactArgs(1),
	RunE:  runPut,
}

func init() {
	putCmd.Flags().StringVar(&putFamily, "family", "", "column family")
	putCmd.Flags().StringVar(&putQualifier, "qualifier", "", "column qualifier")
	putCmd.Flags().StringVar(&putValue, "value", "", "cell value")
	putCmd.Flags().Int64Var(&putTimestamp, "timestamp", domain.ServerTimestamp,
		"cell timestamp in microseconds (default: server-assigned)")
	putCmd.Flags().BoolVar(&putDeleteRow, "delete", false, "delete the row instead of writing")
}

func runPut(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return err
	}

	var mut domain.Mutation
	if putDeleteRow {
		mut = domain.DeleteRow()
	} else {
		if putFamily == "" {
			return errors.New("--family is required unless --delete is set")
		}
		mut = domain.SetCell(putFamily, []byte(putQualifier), putTimestamp, []byte(putValue))
	}

	ctx := cmd.Context()
	provider, err := rpc.NewGRPCProvider(ctx, "store", cfg.Store.Endpoint)
	if err != nil {
		return err
	}
	defer provider.Close()

	client := rpc.NewDataClient(provider.Conn())
	err = client.MutateRow(ctx, &rpc.MutateRowRequest{
		Table:     cfg.Store.Table,
		RowKey:    []byte(args[0]),
		Mutations: []domain.Mutation{mut},
	})
	if err != nil {
		return err
	}
	slog.Info("Row mutated", "table", cfg.Store.Table, "row", args[0])
	return nil
}
