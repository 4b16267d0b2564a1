package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/standardize"
)

var standardizeCmd = &cobra.Command{
	Use:   "standardize",
	Short: "Normalize pending raw statements",
	Long: `Drain the pending-companies queue: classify each company's raw
statement rows onto the canonical chart of accounts, repair unit-scale
outliers, convert cumulative quarters to incremental ones, and persist
the result. Each company commits atomically.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("standardize starting", zap.Int("limit", limit))
		if err := standardize.NewEngine(st).Run(ctx, limit); err != nil {
			return eris.Wrap(err, "standardize")
		}
		return nil
	},
}

func init() {
	standardizeCmd.Flags().Int("limit", 0, "cap companies normalized this run (0 = no cap)")
	rootCmd.AddCommand(standardizeCmd)
}
