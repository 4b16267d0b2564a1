package b3

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/batch"
	"github.com/faustostangler/FL2-sub000/internal/clean"
	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/model"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pool"
	"github.com/faustostangler/FL2-sub000/internal/store"
)

// Pipeline runs the two-phase company ingest: paginate the listing,
// then fan a detail fetch per unseen company through the worker pool.
type Pipeline struct {
	client  *Client
	st      store.Store
	wcfg    config.WorkerConfig
	metrics *monitoring.Collector
}

// NewPipeline wires the ingest over a client and a store.
func NewPipeline(client *Client, st store.Store, wcfg config.WorkerConfig, metrics *monitoring.Collector) *Pipeline {
	return &Pipeline{client: client, st: st, wcfg: wcfg, metrics: metrics}
}

// Run executes both phases. limit > 0 caps the number of detail
// fetches, which keeps incremental runs cheap.
func (p *Pipeline) Run(ctx context.Context, limit int) error {
	start := time.Now()

	rows, err := p.listAll(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("b3: listing complete", zap.Int("companies", len(rows)))

	stored, err := p.st.ListCompanyCVMCodes(ctx)
	if err != nil {
		return err
	}
	skip := make(map[string]struct{}, len(stored))
	for _, code := range stored {
		skip[code] = struct{}{}
	}

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	saver := batch.NewBatcher(func(items []model.Company) error {
		return p.st.SaveCompanies(ctx, items)
	}, p.wcfg.Threshold)

	var flushErr error
	outcome := pool.Run(ctx, p.metrics, pool.FromSlice(rows), p.detailTask(skip), pool.Options[*model.Company]{
		MaxWorkers: p.wcfg.MaxWorkers,
		QueueSize:  p.wcfg.QueueSize,
		OnResult: func(r pool.Result[*model.Company]) {
			if r.Value == nil || flushErr != nil {
				return
			}
			flushErr = saver.Handle(*r.Value)
		},
	})
	if flushErr != nil {
		return flushErr
	}
	if err := saver.Finalize(); err != nil {
		return err
	}

	zap.L().Info("b3: company ingest done",
		zap.Int("listed", len(rows)),
		zap.Int("saved", saver.Flushed()),
		zap.Uint64("network_bytes", outcome.Metrics.NetworkBytes),
		zap.Uint64("failures", outcome.Metrics.Failures),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// listAll fetches page 1 synchronously to learn totalPages, then fans
// the remaining pages through the pool.
func (p *Pipeline) listAll(ctx context.Context) ([]ListingRow, error) {
	first, err := p.client.FetchListingPage(ctx, 1, "seed")
	if err != nil {
		return nil, err
	}
	rows := append([]ListingRow(nil), first.Results...)

	total := first.Page.TotalPages
	if total <= 1 {
		return rows, nil
	}

	pages := make([]int, 0, total-1)
	for n := 2; n <= total; n++ {
		pages = append(pages, n)
	}

	counter := batch.NewBatcher[ListingRow](nil, p.wcfg.Threshold)
	outcome := pool.Run(ctx, p.metrics, pool.FromSlice(pages),
		func(ctx context.Context, job pool.Job[int]) ([]ListingRow, error) {
			page, err := p.client.FetchListingPage(ctx, job.Data, job.WorkerID)
			if err != nil {
				return nil, err
			}
			return page.Results, nil
		},
		pool.Options[[]ListingRow]{
			MaxWorkers: p.wcfg.MaxWorkers,
			QueueSize:  p.wcfg.QueueSize,
			OnResult: func(r pool.Result[[]ListingRow]) {
				_ = counter.Handle(r.Value...)
			},
		},
	)
	for _, r := range outcome.Results {
		rows = append(rows, r.Value...)
	}
	return rows, nil
}

// detailTask builds the phase-two processor. A nil result means the
// row was skipped, not failed.
func (p *Pipeline) detailTask(skip map[string]struct{}) pool.Processor[ListingRow, *model.Company] {
	return func(ctx context.Context, job pool.Job[ListingRow]) (*model.Company, error) {
		code := job.Data.CodeCVM.String()
		if code == "" {
			return nil, eris.Errorf("b3: listing row %q missing codeCVM", job.Data.CompanyName)
		}
		if _, ok := skip[code]; ok {
			zap.L().Debug("b3: company already stored", zap.String("cvm_code", code))
			return nil, nil
		}
		detail, err := p.client.FetchDetail(ctx, code, job.WorkerID)
		if err != nil {
			return nil, err
		}
		merged := job.Data.toCompany().Merge(detail.toCompany())
		return &merged, nil
	}
}

func (r ListingRow) toCompany() model.Company {
	var c model.Company
	c.ApplyField("codeCVM", r.CodeCVM.String())
	c.ApplyField("issuingCompany", r.IssuingCompany)
	c.ApplyField("companyName", clean.Text(r.CompanyName))
	c.ApplyField("tradingName", clean.Text(r.TradingName))
	c.ApplyField("cnpj", r.CNPJ)
	c.ApplyField("marketIndicator", r.MarketIndicator.String())
	c.ApplyField("typeBDR", r.TypeBDR)
	c.ApplyField("status", r.Status)
	c.ApplyField("segment", r.Segment)
	c.ApplyField("segmentEng", r.SegmentEng)
	c.ApplyField("market", r.Market)
	if t, err := clean.Quarter(r.DateListing); err == nil {
		c.DateListing = t
	}
	return c
}

func (d *detailResponse) toCompany() model.Company {
	var c model.Company
	c.ApplyField("codeCVM", d.CodeCVM.String())
	c.ApplyField("issuingCompany", d.IssuingCompany)
	c.ApplyField("companyName", clean.Text(d.CompanyName))
	c.ApplyField("tradingName", clean.Text(d.TradingName))
	c.ApplyField("cnpj", d.CNPJ)
	c.ApplyField("website", d.Website)
	c.ApplyField("market", d.Market)
	c.ApplyField("marketIndicator", d.MarketIndicator.String())
	c.ApplyField("status", d.Status)
	c.ApplyField("typeBDR", d.TypeBDR)
	c.ApplyField("describeCategoryBVMF", d.DescribeCategoryBVMF)
	c.ApplyField("segment", d.Segment)
	c.ApplyField("segmentEng", d.SegmentEng)
	c.ApplyField("institutionCommon", d.InstitutionCommon)
	c.ApplyField("institutionPreferred", d.InstitutionPreferred)
	c.Sector, c.Subsector, c.Segment = clean.Industry(d.IndustryClassification)
	c.HasQuotation = d.HasQuotation
	c.HasEmissions = d.HasEmissions
	c.HasBDR = d.HasBDR
	for _, oc := range d.OtherCodes {
		if oc.Code != "" {
			c.TickerCodes = append(c.TickerCodes, oc.Code)
		}
		if oc.ISIN != "" {
			c.ISINCodes = append(c.ISINCodes, oc.ISIN)
		}
	}
	if t, err := clean.Quarter(d.DateListing); err == nil {
		c.DateListing = t
	}
	if t, err := clean.Quarter(d.LastDate); err == nil {
		c.LastDate = t
	}
	if t, err := clean.Quarter(d.DateQuotation); err == nil {
		c.DateQuotation = t
	}
	return c
}
