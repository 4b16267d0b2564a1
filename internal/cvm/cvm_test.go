package cvm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/fetch"
	"github.com/faustostangler/FL2-sub000/internal/model"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pacer"
	"github.com/faustostangler/FL2-sub000/internal/store"
)

func testPacer() *pacer.Pacer {
	return pacer.New(pacer.Options{
		Probe: func(time.Duration) (float64, error) { return 0, nil },
		Rand:  func() float64 { return 0 },
	})
}

func TestPredictNSDsZeroRecords(t *testing.T) {
	assert.Empty(t, PredictNSDs(0, time.Time{}, 0, nil, config.EstimateConfig{}, time.Now()))
}

func TestPredictNSDsSingleRecord(t *testing.T) {
	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := sent.Add(24 * time.Hour)

	got := PredictNSDs(3, sent, 1, []int{1, 2, 3}, config.EstimateConfig{WindowDays: 30, SafetyFactor: 1.5}, now)
	// daily_avg degenerates to 1/1, one day since, 1.5 safety → ceil(1.5) = 2
	assert.Equal(t, []int{4, 5}, got)
}

func TestPredictNSDsFillsGaps(t *testing.T) {
	sent := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	now := sent.Add(12 * time.Hour) // under a day, clamped to 1

	got := PredictNSDs(5, sent, 60, []int{1, 3, 5}, config.EstimateConfig{WindowDays: 30, SafetyFactor: 1.5}, now)
	// gaps 2 and 4, then ceil(2 × 1 × 1.5) = 3 forward
	assert.Equal(t, []int{2, 4, 6, 7, 8}, got)
}

func TestSplitCategory(t *testing.T) {
	typ, version := splitCategory("Informações Trimestrais 2023 1.0")
	assert.Equal(t, "Informações Trimestrais", typ)
	assert.Equal(t, "1.0", version)

	typ, version = splitCategory("Demonstrações Financeiras Padronizadas 2022 2.0")
	assert.Equal(t, "Demonstrações Financeiras Padronizadas", typ)
	assert.Equal(t, "2.0", version)
}

const nsdPage = `<html><body>
<span id="lblNomeCompanhia">Petrobrás S.A.</span>
<span id="lblNomeDRI">Diretor RI</span>
<span id="lblDescricaoCategoria">Informações Trimestrais 2023 1.0</span>
<span id="lblAuditor">KPMG Auditores</span>
<span id="lblResponsavelTecnico">Responsável Técnico</span>
<span id="lblProtocolo">012345</span>
<span id="lblDataDocumento">31/03/2023</span>
<span id="lblDataEnvio">15/05/2023 18:22:09</span>
<span id="lblMotivoCancelamentoReapresentacao"></span>
<input id="hdnHash" value="aBcD1234" />
</body></html>`

const emptyNSDPage = `<html><body>
<span id="lblNomeCompanhia"></span>
<span id="lblDataEnvio"></span>
</body></html>`

func TestParseNSDPage(t *testing.T) {
	n, err := ParseNSDPage(777, []byte(nsdPage))
	require.NoError(t, err)
	require.NotNil(t, n)

	assert.Equal(t, 777, n.NSD)
	assert.Equal(t, "PETROBRAS SA", n.CompanyName)
	assert.Equal(t, "INFORMACOES TRIMESTRAIS", n.NSDType)
	assert.Equal(t, 1, n.Version)
	assert.Equal(t, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), n.Quarter)
	assert.Equal(t, time.Date(2023, 5, 15, 18, 22, 9, 0, time.UTC), n.SentDate)
	assert.Equal(t, "aBcD1234", n.Hash)
	assert.Equal(t, "KPMG Auditores", n.Auditor)
}

func TestParseNSDPageMissingSentDate(t *testing.T) {
	n, err := ParseNSDPage(778, []byte(emptyNSDPage))
	require.NoError(t, err)
	assert.Nil(t, n)
}

const capitalPage = `<html><body>
<table><tr><td>Número de Ações (Mil)</td></tr></table>
<span id="QtdAordCapiItgz_1">1.000</span>
<span id="QtdAprfCapiItgz_1">500</span>
<span id="QtdAordTeso_1">10</span>
<span id="QtdAprfTeso_1">0</span>
</body></html>`

func TestParseCapital(t *testing.T) {
	rows, err := parseCapital([]byte(capitalPage))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	byAccount := map[string]float64{}
	for _, r := range rows {
		byAccount[r.Account] = r.Value
	}
	assert.Equal(t, 1_000_000.0, byAccount[model.AccountSharesON])
	assert.Equal(t, 500_000.0, byAccount[model.AccountSharesPN])
	assert.Equal(t, 10_000.0, byAccount[model.AccountTreasuryON])
	assert.Equal(t, 0.0, byAccount[model.AccountTreasuryPN])
}

const framePage = `<html><body>
<div id="TituloTabelaSemBorda">Balanço Patrimonial Ativo (Reais Mil)</div>
<table id="ctl00_cphPopUp_tbDados">
<tr><th>Conta</th><th>Descrição</th><th>Valor</th></tr>
<tr><td>1</td><td>Ativo Total</td><td>1.234.567,89</td></tr>
<tr><td>1.01</td><td>Ativo Circulante</td><td>1.000</td></tr>
<tr><td>1.02</td><td>Ilegível</td><td>n/d</td></tr>
</table>
</body></html>`

func TestParseFrameTable(t *testing.T) {
	rows, err := parseFrameTable([]byte(framePage))
	require.NoError(t, err)
	require.Len(t, rows, 2, "unparsable value row is skipped")

	assert.Equal(t, "1", rows[0].Account)
	assert.Equal(t, "Ativo Total", rows[0].Description)
	assert.InDelta(t, 1_234_567_890, rows[0].Value, 1e-6)
	assert.Equal(t, "1.01", rows[1].Account)
	assert.InDelta(t, 1_000_000, rows[1].Value, 1e-6)
}

func TestParseFrameTableMissing(t *testing.T) {
	_, err := parseFrameTable([]byte(`<html><body>vazio</body></html>`))
	assert.Error(t, err)
}

func newTestStoreCVM(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cvm.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func newFetchClient(metrics *monitoring.Collector) *fetch.Client {
	return fetch.NewClient(config.HTTPConfig{TimeoutSecs: 5}, metrics, testPacer())
}

func TestNSDPipelineColdStart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("CodigoTipoInstituicao"))
		n, _ := strconv.Atoi(r.URL.Query().Get("NumeroSequencialDocumento"))
		if n == 2 {
			w.Write([]byte(emptyNSDPage)) //nolint:errcheck
			return
		}
		w.Write([]byte(nsdPage)) //nolint:errcheck
	}))
	defer srv.Close()

	st := newTestStoreCVM(t)
	metrics := monitoring.NewCollector()
	p := NewNSDPipeline(newFetchClient(metrics), st, config.CVMConfig{NSDURL: srv.URL + "/nsd.aspx"},
		config.EstimateConfig{WindowDays: 30, SafetyFactor: 1.5},
		config.WorkerConfig{MaxWorkers: 2, Threshold: 10}, metrics)

	require.NoError(t, p.Run(context.Background(), 3))

	nums, err := st.ListNSDNumbers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, nums, "page without sent date is discarded")

	// parsed pages count toward processing, including the empty one
	assert.Positive(t, metrics.ProcessingBytes())

	got, err := st.GetNSD(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "PETROBRAS SA", got.CompanyName)
	assert.Equal(t, "aBcD1234", got.Hash)
}

func seedStatementTarget(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveCompanies(ctx, []model.Company{{
		CVMCode:     "9512",
		CompanyName: "PETROBRAS SA",
		Sector:      "PETROLEO GAS E BIOCOMBUSTIVEIS",
		Subsector:   "PETROLEO GAS E BIOCOMBUSTIVEIS",
		Segment:     "EXPLORACAO REFINO E DISTRIBUICAO",
	}}))
	require.NoError(t, st.SaveNSDs(ctx, []model.NSD{{
		NSD:         1000,
		CompanyName: "PETROBRAS SA",
		Quarter:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Version:     1,
		NSDType:     model.NSDTypeITR,
		SentDate:    time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC),
		Hash:        "hash1000",
	}}))
}

func TestStatementPipelineIngestsAllFrames(t *testing.T) {
	var capitalHits, frameHits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "hash1000", q.Get("Hash"))
		assert.Equal(t, "ITR", q.Get("NomeTipoDocumento"))
		assert.Equal(t, "3", q.Get("CodTipoDocumento"))
		assert.Equal(t, "9512", q.Get("NumeroSequencialRegistroCvm"))
		if r.URL.Path == "/capital.aspx" {
			capitalHits++
			w.Write([]byte(capitalPage)) //nolint:errcheck
			return
		}
		frameHits++
		w.Write([]byte(framePage)) //nolint:errcheck
	}))
	defer srv.Close()

	st := newTestStoreCVM(t)
	seedStatementTarget(t, st)

	metrics := monitoring.NewCollector()
	p := NewStatementPipeline(newFetchClient(metrics), st, config.CVMConfig{
		StatementURL: srv.URL + "/statement.aspx",
		CapitalURL:   srv.URL + "/capital.aspx",
	}, config.WorkerConfig{MaxWorkers: 2, Threshold: 10}, metrics)

	ctx := context.Background()
	require.NoError(t, p.Run(ctx, 0))

	assert.Equal(t, 1, capitalHits)
	assert.Equal(t, 10, frameHits)
	assert.Positive(t, metrics.ProcessingBytes())

	rows, err := st.LoadCompanyStatements(ctx, "PETROBRAS SA")
	require.NoError(t, err)
	// 4 capital rows + 2 per financial frame × 10 frames
	assert.Len(t, rows, 24)

	for _, r := range rows {
		assert.Equal(t, 1000, r.NSD)
		assert.Equal(t, "PETROLEO GAS E BIOCOMBUSTIVEIS", r.Sector)
		assert.Nil(t, r.Processed)
	}

	pending, err := st.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"PETROBRAS SA"}, pending)

	// second run: the nsd now appears in raw storage, nothing to do
	require.NoError(t, p.Run(ctx, 0))
	assert.Equal(t, 1, capitalHits)
}

func TestSelectTargetsSkipsUnmatchedCompany(t *testing.T) {
	st := newTestStoreCVM(t)
	ctx := context.Background()
	require.NoError(t, st.SaveNSDs(ctx, []model.NSD{{
		NSD:         2000,
		CompanyName: "DESCONHECIDA SA",
		Quarter:     time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC),
		Version:     1,
		NSDType:     model.NSDTypeDFP,
		SentDate:    time.Date(2024, 5, 15, 10, 0, 0, 0, time.UTC),
	}}))

	metrics := monitoring.NewCollector()
	p := NewStatementPipeline(newFetchClient(metrics), st, config.CVMConfig{}, config.WorkerConfig{}, metrics)

	targets, err := p.selectTargets(ctx)
	require.NoError(t, err)
	assert.Empty(t, targets)
}
