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

var nsdCmd = &cobra.Command{
	Use:   "nsd",
	Short: "Ingest CVM filing headers",
	Long: `Predict which sequential filing numbers the CVM has published since
the last run, fetch each one, and store the parsed headers. Numbers
that resolve to no filing are skipped silently.`,
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

		zap.L().Info("nsd ingest starting", zap.Int("limit", limit))
		pipeline := cvm.NewNSDPipeline(client, st, cfg.CVM, cfg.Estimate, cfg.Worker, metrics)
		if err := pipeline.Run(ctx, limit); err != nil {
			return eris.Wrap(err, "nsd ingest")
		}

		logSummary("nsd ingest", metrics, start)
		return nil
	},
}

func init() {
	nsdCmd.Flags().Int("limit", 0, "cap filing numbers fetched this run (0 = no cap)")
	rootCmd.AddCommand(nsdCmd)
}
