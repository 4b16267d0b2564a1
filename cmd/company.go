package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/b3"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
)

var companyCmd = &cobra.Command{
	Use:   "company",
	Short: "Ingest the B3 listed-company registry",
	Long: `Fetch the paginated B3 listed-company registry, enrich each new
company with its detail record, and upsert the merged result. Companies
already stored are skipped.`,
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
		if err := checkConnectivity(ctx, newFetchClient(metrics)); err != nil {
			return err
		}
		client := b3.NewClient(cfg.B3, cfg.HTTP, metrics, newPacer())

		zap.L().Info("company ingest starting", zap.Int("limit", limit))
		if err := b3.NewPipeline(client, st, cfg.Worker, metrics).Run(ctx, limit); err != nil {
			return eris.Wrap(err, "company ingest")
		}

		logSummary("company ingest", metrics, start)
		return nil
	},
}

func init() {
	companyCmd.Flags().Int("limit", 0, "cap new companies fetched this run (0 = no cap)")
	rootCmd.AddCommand(companyCmd)
}
