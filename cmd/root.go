package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/fetch"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pacer"
	"github.com/faustostangler/FL2-sub000/internal/store"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fl2",
	Short: "B3 listed-company financial statement ingester",
	Long:  "Scrapes the B3 company registry and CVM regulatory filings, stores raw statement rows, and normalizes them onto a canonical chart of accounts.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore builds the configured backend and brings its schema up to
// date.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// newPacer builds the CPU-adaptive pacer from config.
func newPacer() *pacer.Pacer {
	return pacer.New(pacer.Options{
		CPUInterval: time.Duration(cfg.Pacer.CPUInterval * float64(time.Second)),
		Multiplier:  cfg.Pacer.Multiplier,
	})
}

// newFetchClient builds the session-rotating scrape client shared by
// the CVM pipelines.
func newFetchClient(metrics *monitoring.Collector) *fetch.Client {
	return fetch.NewClient(cfg.HTTP, metrics, newPacer())
}

// checkConnectivity fails fast when the probe URL is unreachable.
func checkConnectivity(ctx context.Context, client *fetch.Client) error {
	if !client.Probe(ctx) {
		return eris.Errorf("network probe failed: %s", cfg.HTTP.ProbeURL)
	}
	return nil
}

// logSummary emits the standard end-of-run traffic summary.
func logSummary(stage string, metrics *monitoring.Collector, start time.Time) {
	snap := metrics.Snapshot(time.Since(start))
	zap.L().Info(stage+" summary",
		zap.Uint64("network_bytes", snap.NetworkBytes),
		zap.Uint64("processing_bytes", snap.ProcessingBytes),
		zap.Uint64("failures", snap.Failures),
		zap.Duration("elapsed", snap.ElapsedTime),
	)
}
