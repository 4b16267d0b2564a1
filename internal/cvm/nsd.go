package cvm

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/batch"
	"github.com/faustostangler/FL2-sub000/internal/clean"
	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/fetch"
	"github.com/faustostangler/FL2-sub000/internal/model"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pool"
	"github.com/faustostangler/FL2-sub000/internal/store"
)

// ParseNSDPage extracts a filing header from the document page. A page
// without a sent date means the nsd has no document behind it; the
// caller gets (nil, nil) and discards it.
func ParseNSDPage(nsd int, body []byte) (*model.NSD, error) {
	doc, err := newDocument(body)
	if err != nil {
		return nil, err
	}

	sentText := elementText(doc, "#lblDataEnvio")
	if sentText == "" {
		return nil, nil
	}
	sentDate, err := clean.SentDate(sentText)
	if err != nil {
		return nil, eris.Wrapf(err, "cvm: nsd %d sent date %q", nsd, sentText)
	}

	nsdType, versionText := splitCategory(elementText(doc, "#lblDescricaoCategoria"))
	version := 0
	if versionText != "" {
		f, err := strconv.ParseFloat(versionText, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "cvm: nsd %d version %q", nsd, versionText)
		}
		version = int(f)
	}

	quarter, err := clean.Quarter(elementText(doc, "#lblDataDocumento"))
	if err != nil {
		return nil, eris.Wrapf(err, "cvm: nsd %d quarter", nsd)
	}

	hash, _ := doc.Find("#hdnHash").First().Attr("value")

	n := &model.NSD{
		NSD:                nsd,
		CompanyName:        clean.Text(elementText(doc, "#lblNomeCompanhia")),
		Quarter:            quarter,
		Version:            version,
		NSDType:            clean.Text(nsdType),
		DRI:                elementText(doc, "#lblNomeDRI"),
		Auditor:            elementText(doc, "#lblAuditor"),
		ResponsibleAuditor: elementText(doc, "#lblResponsavelTecnico"),
		Protocol:           elementText(doc, "#lblProtocolo"),
		SentDate:           sentDate,
		Reason:             elementText(doc, "#lblMotivoCancelamentoReapresentacao"),
		Hash:               hash,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// NSDPipeline predicts the plausible nsd range and fetches each page.
type NSDPipeline struct {
	client   *fetch.Client
	st       store.Store
	cfg      config.CVMConfig
	ecfg     config.EstimateConfig
	wcfg     config.WorkerConfig
	metrics  *monitoring.Collector
	sessions *fetch.SessionPool
	now      func() time.Time
}

// NewNSDPipeline wires the filing-header ingest.
func NewNSDPipeline(client *fetch.Client, st store.Store, cfg config.CVMConfig, ecfg config.EstimateConfig, wcfg config.WorkerConfig, metrics *monitoring.Collector) *NSDPipeline {
	return &NSDPipeline{
		client:   client,
		st:       st,
		cfg:      cfg,
		ecfg:     ecfg,
		wcfg:     wcfg,
		metrics:  metrics,
		sessions: fetch.NewSessionPool(client),
		now:      time.Now,
	}
}

func (p *NSDPipeline) nsdURL(nsd int) string {
	v := url.Values{}
	v.Set("NumeroSequencialDocumento", strconv.Itoa(nsd))
	v.Set("CodigoTipoInstituicao", "1")
	return p.cfg.NSDURL + "?" + v.Encode()
}

// Run fetches every predicted nsd and persists the parsed headers in
// threshold-sized batches. limit > 0 caps the target list.
func (p *NSDPipeline) Run(ctx context.Context, limit int) error {
	start := time.Now()

	maxNSD, maxSent, err := p.st.MaxNSD(ctx)
	if err != nil {
		return err
	}

	var targets []int
	if maxNSD == 0 {
		// cold start: nothing to extrapolate from, walk forward from 1
		// until limit says stop
		if limit <= 0 {
			zap.L().Info("cvm: no stored nsds and no limit, nothing to do")
			return nil
		}
		for n := 1; n <= limit; n++ {
			targets = append(targets, n)
		}
	} else {
		windowDays := p.ecfg.WindowDays
		if windowDays <= 0 {
			windowDays = 30
		}
		cutoff := p.now().AddDate(0, 0, -windowDays)
		recent, err := p.st.CountNSDsSince(ctx, cutoff)
		if err != nil {
			return err
		}
		stored, err := p.st.ListNSDNumbers(ctx)
		if err != nil {
			return err
		}
		targets = PredictNSDs(maxNSD, maxSent, recent, stored, p.ecfg, p.now())
		if limit > 0 && len(targets) > limit {
			targets = targets[:limit]
		}
	}

	if len(targets) == 0 {
		zap.L().Info("cvm: nsd range empty, nothing to do")
		return nil
	}
	zap.L().Info("cvm: nsd ingest starting",
		zap.Int("targets", len(targets)),
		zap.Int("max_stored", maxNSD),
	)

	saver := batch.NewBatcher(func(items []model.NSD) error {
		return p.st.SaveNSDs(ctx, items)
	}, p.wcfg.Threshold)

	var flushErr error
	outcome := pool.Run(ctx, p.metrics, pool.FromSlice(targets),
		func(ctx context.Context, job pool.Job[int]) (*model.NSD, error) {
			sess := p.sessions.Get(job.WorkerID)
			body, sess, err := p.client.Fetch(ctx, sess, p.nsdURL(job.Data), job.WorkerID)
			p.sessions.Put(job.WorkerID, sess)
			if err != nil {
				return nil, err
			}
			n, err := ParseNSDPage(job.Data, body)
			if err != nil {
				return nil, err
			}
			p.metrics.RecordProcessingBytes(uint64(len(body)))
			if n == nil {
				zap.L().Debug("cvm: nsd has no document", zap.Int("nsd", job.Data))
			}
			return n, nil
		},
		pool.Options[*model.NSD]{
			MaxWorkers: p.wcfg.MaxWorkers,
			QueueSize:  p.wcfg.QueueSize,
			OnResult: func(r pool.Result[*model.NSD]) {
				if r.Value == nil || flushErr != nil {
					return
				}
				flushErr = saver.Handle(*r.Value)
			},
		},
	)
	if flushErr != nil {
		return flushErr
	}
	if err := saver.Finalize(); err != nil {
		return err
	}

	zap.L().Info("cvm: nsd ingest done",
		zap.Int("targets", len(targets)),
		zap.Int("saved", saver.Flushed()),
		zap.Uint64("network_bytes", outcome.Metrics.NetworkBytes),
		zap.Uint64("failures", outcome.Metrics.Failures),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
