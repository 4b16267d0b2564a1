package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/b3"
	"github.com/faustostangler/FL2-sub000/internal/cvm"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/standardize"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingest cycle",
	Long: `Run every stage in dependency order: company registry, filing
headers, raw statements, then normalization. A stage failure stops the
cycle; completed stages keep their writes.`,
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
		b3Client := b3.NewClient(cfg.B3, cfg.HTTP, metrics, newPacer())
		cvmClient := newFetchClient(metrics)
		if err := checkConnectivity(ctx, cvmClient); err != nil {
			return err
		}

		zap.L().Info("full cycle starting", zap.Int("limit", limit))

		if err := b3.NewPipeline(b3Client, st, cfg.Worker, metrics).Run(ctx, limit); err != nil {
			return eris.Wrap(err, "run: company stage")
		}

		nsd := cvm.NewNSDPipeline(cvmClient, st, cfg.CVM, cfg.Estimate, cfg.Worker, metrics)
		if err := nsd.Run(ctx, limit); err != nil {
			return eris.Wrap(err, "run: nsd stage")
		}

		stmts := cvm.NewStatementPipeline(cvmClient, st, cfg.CVM, cfg.Worker, metrics)
		if err := stmts.Run(ctx, limit); err != nil {
			return eris.Wrap(err, "run: statement stage")
		}

		if err := standardize.NewEngine(st).Run(ctx, limit); err != nil {
			return eris.Wrap(err, "run: standardize stage")
		}

		logSummary("full cycle", metrics, start)
		return nil
	},
}

func init() {
	runCmd.Flags().Int("limit", 0, "per-stage item cap (0 = no cap)")
	rootCmd.AddCommand(runCmd)
}
