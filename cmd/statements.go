package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/cvm"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
)

var statementsCmd = &cobra.Command{
	Use:   "statements",
	Short: "Ingest raw financial statements",
	Long: `Join stored filings against the company registry and fetch every
statement frame of each quarterly and annual filing not yet ingested:
capital composition plus the individual and consolidated balance
sheet, income, cash-flow and value-added tables.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")
		start := time.Now()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		metrics := monitoring.NewCollector()
		client := newFetchClient(metrics)
		if err := checkConnectivity(ctx, client); err != nil {
			return err
		}

		zap.L().Info("statement ingest starting", zap.Int("limit", limit))
		pipeline := cvm.NewStatementPipeline(client, st, cfg.CVM, cfg.Worker, metrics)
		if err := pipeline.Run(ctx, limit); err != nil {
			return eris.Wrap(err, "statement ingest")
		}

		logSummary("statement ingest", metrics, start)
		return nil
	},
}

func init() {
	statementsCmd.Flags().Int("limit", 0, "cap filings fetched this run (0 = no cap)")
	rootCmd.AddCommand(statementsCmd)
}
