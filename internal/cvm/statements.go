package cvm

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"time"

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

// docType maps a filing category onto the portal's document name and
// code query parameters.
type docType struct {
	Name string
	Code int
}

var docTypes = map[string]docType{
	model.NSDTypeITR: {Name: "ITR", Code: 3},
	model.NSDTypeDFP: {Name: "DFP", Code: 4},
}

// frame is one (grupo, quadro) sheet of a filing.
type frame struct {
	Group        string
	Quadro       string
	Informacao   string
	Demonstracao string
	Periodo      string
	Capital      bool
}

func financialFrames(group, demonstracao string) []frame {
	quadros := []string{
		"Balanço Patrimonial Ativo",
		"Balanço Patrimonial Passivo",
		"Demonstração do Resultado",
		"Demonstração do Fluxo de Caixa",
		"Demonstração de Valor Adicionado",
	}
	out := make([]frame, 0, len(quadros))
	for _, q := range quadros {
		out = append(out, frame{
			Group:        group,
			Quadro:       q,
			Informacao:   "2",
			Demonstracao: demonstracao,
			Periodo:      "0",
		})
	}
	return out
}

// statementFrames is the capital-composition sheet plus the five
// financial sheets for each of the two statement groups.
var statementFrames = func() []frame {
	frames := []frame{{Group: model.GroupCompanyData, Quadro: "Composição do Capital", Capital: true}}
	frames = append(frames, financialFrames(model.GroupIndividual, "2")...)
	frames = append(frames, financialFrames(model.GroupConsolidated, "4")...)
	return frames
}()

// target is one filing to pull frames for, joined to its company.
type target struct {
	NSD     model.NSD
	Company model.Company
	Doc     docType
}

// StatementPipeline fetches every frame of every outstanding filing.
type StatementPipeline struct {
	client   *fetch.Client
	st       store.Store
	cfg      config.CVMConfig
	wcfg     config.WorkerConfig
	metrics  *monitoring.Collector
	sessions *fetch.SessionPool
}

// NewStatementPipeline wires the statement ingest.
func NewStatementPipeline(client *fetch.Client, st store.Store, cfg config.CVMConfig, wcfg config.WorkerConfig, metrics *monitoring.Collector) *StatementPipeline {
	return &StatementPipeline{
		client:   client,
		st:       st,
		cfg:      cfg,
		wcfg:     wcfg,
		metrics:  metrics,
		sessions: fetch.NewSessionPool(client),
	}
}

// selectTargets joins companies and filings on cleaned name, keeps the
// supported filing types, and drops filings whose statements are
// already stored.
func (p *StatementPipeline) selectTargets(ctx context.Context) ([]target, error) {
	companies, err := p.st.ListCompanies(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]model.Company, len(companies))
	for _, c := range companies {
		byName[clean.Text(c.CompanyName)] = c
	}

	types := make([]string, 0, len(docTypes))
	for t := range docTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	nsds, err := p.st.ListNSDsByTypes(ctx, types)
	if err != nil {
		return nil, err
	}

	fetched, err := p.st.ListRawStatementNSDs(ctx)
	if err != nil {
		return nil, err
	}
	done := make(map[int]struct{}, len(fetched))
	for _, n := range fetched {
		done[n] = struct{}{}
	}

	var targets []target
	for _, n := range nsds {
		if _, ok := done[n.NSD]; ok {
			continue
		}
		company, ok := byName[clean.Text(n.CompanyName)]
		if !ok {
			zap.L().Debug("cvm: filing without matching company",
				zap.Int("nsd", n.NSD), zap.String("company", n.CompanyName))
			continue
		}
		targets = append(targets, target{NSD: n, Company: company, Doc: docTypes[n.NSDType]})
	}

	sort.Slice(targets, func(i, j int) bool {
		a, b := targets[i], targets[j]
		if a.NSD.CompanyName != b.NSD.CompanyName {
			return a.NSD.CompanyName < b.NSD.CompanyName
		}
		if !a.NSD.Quarter.Equal(b.NSD.Quarter) {
			return a.NSD.Quarter.Before(b.NSD.Quarter)
		}
		return a.NSD.NSD < b.NSD.NSD
	})
	return targets, nil
}

func (p *StatementPipeline) frameURL(t target, f frame) string {
	base := p.cfg.StatementURL
	if f.Capital {
		base = p.cfg.CapitalURL
	}
	v := url.Values{}
	v.Set("Grupo", f.Group)
	v.Set("Quadro", f.Quadro)
	v.Set("NomeTipoDocumento", t.Doc.Name)
	v.Set("Empresa", t.NSD.CompanyName)
	v.Set("DataReferencia", t.NSD.Quarter.Format("2006-01-02"))
	v.Set("Versao", strconv.Itoa(t.NSD.Version))
	v.Set("CodTipoDocumento", strconv.Itoa(t.Doc.Code))
	v.Set("NumeroSequencialDocumento", strconv.Itoa(t.NSD.NSD))
	v.Set("NumeroSequencialRegistroCvm", t.Company.CVMCode)
	v.Set("CodigoTipoInstituicao", "1")
	v.Set("Hash", t.NSD.Hash)
	if f.Informacao != "" {
		v.Set("Informacao", f.Informacao)
	}
	if f.Demonstracao != "" {
		v.Set("Demonstracao", f.Demonstracao)
	}
	if f.Periodo != "" {
		v.Set("Periodo", f.Periodo)
	}
	return base + "?" + v.Encode()
}

// fetchTarget pulls every frame of one filing and stamps the parsed
// rows with the filing's identity.
func (p *StatementPipeline) fetchTarget(ctx context.Context, t target, workerID string) ([]model.StatementRow, error) {
	var out []model.StatementRow
	for _, f := range statementFrames {
		sess := p.sessions.Get(workerID)
		body, sess, err := p.client.Fetch(ctx, sess, p.frameURL(t, f), workerID)
		p.sessions.Put(workerID, sess)
		if err != nil {
			return nil, err
		}

		var rows []model.StatementRow
		if f.Capital {
			rows, err = parseCapital(body)
		} else {
			rows, err = parseFrameTable(body)
		}
		if err != nil {
			zap.L().Warn("cvm: frame parse failed",
				zap.Int("nsd", t.NSD.NSD),
				zap.String("quadro", f.Quadro),
				zap.Error(err),
			)
			continue
		}
		p.metrics.RecordProcessingBytes(uint64(len(body)))

		for i := range rows {
			rows[i].CompanyName = t.NSD.CompanyName
			rows[i].Quarter = t.NSD.Quarter
			rows[i].Version = t.NSD.Version
			rows[i].NSDType = f.Group
			rows[i].Frame = f.Quadro
			rows[i].NSD = t.NSD.NSD
			rows[i].Sector = t.Company.Sector
			rows[i].Subsector = t.Company.Subsector
			rows[i].Segment = t.Company.Segment
		}
		out = append(out, rows...)
	}
	return out, nil
}

// Run selects outstanding filings and drains them through the pool.
// limit > 0 caps the filing count per invocation.
func (p *StatementPipeline) Run(ctx context.Context, limit int) error {
	start := time.Now()

	targets, err := p.selectTargets(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(targets) > limit {
		targets = targets[:limit]
	}
	if len(targets) == 0 {
		zap.L().Info("cvm: no outstanding filings, nothing to do")
		return nil
	}
	zap.L().Info("cvm: statement ingest starting", zap.Int("filings", len(targets)))

	saver := batch.NewBatcher(func(items []model.StatementRow) error {
		return p.st.SaveRawStatements(ctx, items)
	}, p.wcfg.Threshold)

	var flushErr error
	outcome := pool.Run(ctx, p.metrics, pool.FromSlice(targets),
		func(ctx context.Context, job pool.Job[target]) ([]model.StatementRow, error) {
			return p.fetchTarget(ctx, job.Data, job.WorkerID)
		},
		pool.Options[[]model.StatementRow]{
			MaxWorkers: p.wcfg.MaxWorkers,
			QueueSize:  p.wcfg.QueueSize,
			OnResult: func(r pool.Result[[]model.StatementRow]) {
				if flushErr != nil {
					return
				}
				flushErr = saver.Handle(r.Value...)
			},
		},
	)
	if flushErr != nil {
		return flushErr
	}
	if err := saver.Finalize(); err != nil {
		return err
	}

	zap.L().Info("cvm: statement ingest done",
		zap.Int("filings", len(targets)),
		zap.Int("rows_saved", saver.Flushed()),
		zap.Uint64("network_bytes", outcome.Metrics.NetworkBytes),
		zap.Uint64("failures", outcome.Metrics.Failures),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}
