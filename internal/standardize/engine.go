package standardize

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/store"
)

// Engine drains the pending-companies queue one company at a time.
// Each company is normalized and persisted atomically; a failure
// aborts that company only.
type Engine struct {
	st store.Store
}

// NewEngine builds the normalization engine over a store.
func NewEngine(st store.Store) *Engine {
	return &Engine{st: st}
}

// Run normalizes every pending company in sorted order. limit > 0
// caps the company count for this invocation.
func (e *Engine) Run(ctx context.Context, limit int) error {
	start := time.Now()

	pending, err := e.st.ListPendingCompanies(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	if len(pending) == 0 {
		zap.L().Info("standardize: no pending companies, nothing to do")
		return nil
	}
	zap.L().Info("standardize: starting", zap.Int("companies", len(pending)))

	var done, failed int
	for _, company := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Normalize(ctx, company); err != nil {
			failed++
			zap.L().Error("standardize: company failed",
				zap.String("company", company), zap.Error(err))
			continue
		}
		done++
	}

	zap.L().Info("standardize: done",
		zap.Int("companies", done),
		zap.Int("failed", failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Normalize classifies one company's outstanding raw rows and persists
// the canonical rows together with the processed flip.
func (e *Engine) Normalize(ctx context.Context, company string) error {
	raw, err := e.st.LoadCompanyStatements(ctx, company)
	if err != nil {
		return err
	}

	latest := keepMaxVersion(raw)
	normalized := Classify(latest)
	CorrectOutliers(normalized)
	AdjustQuarters(normalized)
	sortRows(normalized)

	zap.L().Debug("standardize: company classified",
		zap.String("company", company),
		zap.Int("raw_rows", len(raw)),
		zap.Int("normalized_rows", len(normalized)),
	)
	return e.st.SaveNormalizedAndMark(ctx, company, normalized)
}
