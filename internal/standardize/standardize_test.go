package standardize

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/faustostangler/FL2-sub000/internal/model"
	"github.com/faustostangler/FL2-sub000/internal/store"
)

func q(year, month int) time.Time {
	day := map[int]int{3: 31, 6: 30, 9: 30, 12: 31}[month]
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func raw(frame, account, desc string, value float64, quarter time.Time, version int) model.StatementRow {
	group := model.GroupIndividual
	if frame == "Composição do Capital" {
		group = model.GroupCompanyData
	}
	return model.StatementRow{
		CompanyName: "ACME SA",
		Quarter:     quarter,
		Version:     version,
		NSDType:     group,
		Frame:       frame,
		Account:     account,
		Description: desc,
		Value:       value,
		NSD:         1,
	}
}

func norm(account string, value float64, quarter time.Time) model.NormalizedRow {
	return model.NormalizedRow{StatementRow: model.StatementRow{
		CompanyName: "ACME SA",
		Quarter:     quarter,
		Version:     1,
		NSDType:     model.GroupIndividual,
		Frame:       "Demonstração do Resultado",
		Account:     account,
		Value:       value,
	}}
}

func TestKeepMaxVersion(t *testing.T) {
	rows := []model.StatementRow{
		raw("Demonstração do Resultado", "3.01", "Receita Líquida", 100, q(2024, 3), 1),
		raw("Demonstração do Resultado", "3.01", "Receita Líquida", 120, q(2024, 3), 2),
		raw("Demonstração do Resultado", "3.02", "Custo dos Bens", -50, q(2024, 3), 1),
	}
	kept := keepMaxVersion(rows)
	require.Len(t, kept, 2)
	assert.Equal(t, 120.0, kept[0].Value)
	assert.Equal(t, 2, kept[0].Version)
	assert.Equal(t, -50.0, kept[1].Value)
}

func TestClassifyBalanceSheet(t *testing.T) {
	rows := []model.StatementRow{
		raw("Balanço Patrimonial Ativo", "1", "Ativo Total", 1000, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "1.01", "Ativo Circulante", 400, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "1.01.01", "Caixa e Equivalentes de Caixa", 100, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "1.02", "Ativo Não Circulante", 600, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "1.02.03", "Imobilizado", 500, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "1.09", "Linha Exótica Sem Regra", 7, q(2024, 3), 1),
	}
	out := Classify(rows)

	byAccount := map[string]model.NormalizedRow{}
	for _, r := range out {
		byAccount[r.Account] = r
	}
	require.Len(t, out, 5, "unclassified row is dropped")

	assert.Equal(t, "Ativo Total", byAccount["01"].Description)
	assert.Equal(t, 400.0, byAccount["01.01"].Value)
	assert.Equal(t, "Caixa e Equivalentes de Caixa", byAccount["01.01.01"].Description)
	assert.Equal(t, "Imobilizado", byAccount["01.02.03"].Description)
	assert.Contains(t, byAccount["01.02.03"].StandardCriteria, "Balanço Ativo")
}

func TestClassifySubCriteriaNeedsParentPrefix(t *testing.T) {
	// an "Imobilizado" line outside the non-current subtree must not
	// match the sub node
	rows := []model.StatementRow{
		raw("Balanço Patrimonial Ativo", "1.02", "Ativo Não Circulante", 600, q(2024, 3), 1),
		raw("Balanço Patrimonial Ativo", "2.05", "Imobilizado", 123, q(2024, 3), 1),
	}
	out := Classify(rows)
	require.Len(t, out, 1)
	assert.Equal(t, "01.02", out[0].Account)
}

func TestClassifyCapital(t *testing.T) {
	rows := []model.StatementRow{
		raw("Composição do Capital", "00.01.01", "Ações Ordinárias em Circulação", 5000, q(2024, 3), 1),
		raw("Composição do Capital", "00.02.02", "Ações Preferenciais em Tesouraria", 10, q(2024, 3), 1),
	}
	out := Classify(rows)
	require.Len(t, out, 2)
}

func TestClassifyCirculanteExcludesNaoCirculante(t *testing.T) {
	rows := []model.StatementRow{
		raw("Balanço Patrimonial Passivo", "2.01", "Passivo Circulante", 100, q(2024, 3), 1),
		raw("Balanço Patrimonial Passivo", "2.02", "Passivo Não Circulante", 200, q(2024, 3), 1),
	}
	out := Classify(rows)
	byAccount := map[string]float64{}
	for _, r := range out {
		byAccount[r.Account] = r.Value
	}
	assert.Equal(t, 100.0, byAccount["02.01"])
	assert.Equal(t, 200.0, byAccount["02.02"])
}

func TestCorrectOutliersScaleMistake(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("03.01", 1000, q(2023, 3)),
		norm("03.01", 1000, q(2023, 6)),
		norm("03.01", 1, q(2023, 9)), // reported in BRL thousands by mistake
		norm("03.01", 1000, q(2023, 12)),
		norm("03.01", 1000, q(2024, 3)),
	}
	CorrectOutliers(rows)

	assert.Equal(t, 1000.0, rows[2].Value)
	require.NotNil(t, rows[2].OriginalValue)
	assert.Equal(t, 1.0, *rows[2].OriginalValue)

	// untouched rows keep no original
	assert.Nil(t, rows[0].OriginalValue)
}

func TestCorrectOutliersNeedsExactScale(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("03.01", 900, q(2023, 3)),
		norm("03.01", 1100, q(2023, 6)),
		norm("03.01", 1, q(2023, 9)), // mean 1000 equals 1×1000
		norm("03.01", 42, q(2023, 12)),
	}
	CorrectOutliers(rows)
	assert.Equal(t, 1000.0, rows[2].Value)
	assert.Equal(t, 42.0, rows[3].Value, "mean does not hit ×1000 or ÷1000")
	assert.Nil(t, rows[3].OriginalValue)
}

func TestCorrectOutliersSingleNeighbor(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("03.01", 5, q(2023, 9)), // thousands slip at the series head
		norm("03.01", 5000, q(2023, 12)),
	}
	CorrectOutliers(rows)
	assert.Equal(t, 5000.0, rows[0].Value, "one-neighbor side still corrects")
	assert.Nil(t, rows[1].OriginalValue)
}

func TestAdjustQuartersIncomeStatement(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("03.01", 10, q(2024, 3)),
		norm("03.01", 20, q(2024, 6)),
		norm("03.01", 30, q(2024, 9)),
		norm("03.01", 100, q(2024, 12)),
	}
	AdjustQuarters(rows)

	values := []float64{rows[0].Value, rows[1].Value, rows[2].Value, rows[3].Value}
	assert.Equal(t, []float64{10, 20, 30, 40}, values)
	require.NotNil(t, rows[3].OriginalValue)
	assert.Equal(t, 100.0, *rows[3].OriginalValue)
}

func TestAdjustQuartersIncomeMissingQuarterInhibits(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("03.01", 10, q(2024, 3)),
		norm("03.01", 20, q(2024, 6)),
		norm("03.01", 100, q(2024, 12)), // Q3 missing
	}
	AdjustQuarters(rows)
	assert.Equal(t, 100.0, rows[2].Value)
}

func TestAdjustQuartersCashFlowCumulative(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("06.01", 5, q(2024, 3)),
		norm("06.01", 12, q(2024, 6)),
		norm("06.01", 18, q(2024, 9)),
		norm("06.01", 25, q(2024, 12)),
	}
	AdjustQuarters(rows)

	values := []float64{rows[0].Value, rows[1].Value, rows[2].Value, rows[3].Value}
	assert.Equal(t, []float64{5, 7, 6, 7}, values)
}

func TestAdjustQuartersLeavesBalanceSheetAlone(t *testing.T) {
	rows := []model.NormalizedRow{
		norm("01.01", 100, q(2024, 3)),
		norm("01.01", 200, q(2024, 6)),
		norm("01.01", 300, q(2024, 9)),
		norm("01.01", 400, q(2024, 12)),
	}
	AdjustQuarters(rows)
	assert.Equal(t, 400.0, rows[3].Value)
}

func newEngineStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "std.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func TestEngineNormalizesPendingCompany(t *testing.T) {
	st := newEngineStore(t)
	ctx := context.Background()

	var rows []model.StatementRow
	for i, month := range []int{3, 6, 9, 12} {
		rows = append(rows,
			raw("Demonstração do Resultado", "3.01", "Receita Líquida", float64((i+1)*10), q(2024, month), 1),
		)
	}
	// Q4 income is year-to-date in the source
	rows[3].Value = 100
	require.NoError(t, st.SaveRawStatements(ctx, rows))

	require.NoError(t, NewEngine(st).Run(ctx, 0))

	pending, err := st.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	out, err := st.ListNormalized(ctx, "ACME SA")
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, "03.01", out[0].Account)
	assert.Equal(t, 40.0, out[3].Value)
	require.NotNil(t, out[3].OriginalValue)
	assert.Equal(t, 100.0, *out[3].OriginalValue)

	// re-running with nothing pending is a no-op
	require.NoError(t, NewEngine(st).Run(ctx, 0))
}

func TestEngineReprocessesNewVersion(t *testing.T) {
	st := newEngineStore(t)
	ctx := context.Background()

	r1 := raw("Demonstração do Resultado", "3.01", "Receita Líquida", 100, q(2024, 3), 1)
	require.NoError(t, st.SaveRawStatements(ctx, []model.StatementRow{r1}))
	require.NoError(t, NewEngine(st).Run(ctx, 0))

	r2 := raw("Demonstração do Resultado", "3.01", "Receita Líquida", 150, q(2024, 3), 2)
	require.NoError(t, st.SaveRawStatements(ctx, []model.StatementRow{r2}))

	pending, err := st.ListPendingCompanies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME SA"}, pending)

	require.NoError(t, NewEngine(st).Run(ctx, 0))

	out, err := st.ListNormalized(ctx, "ACME SA")
	require.NoError(t, err)

	// both versions exist as normalized rows; the max version carries
	// the superseding value
	byVersion := map[int]float64{}
	for _, r := range out {
		byVersion[r.Version] = r.Value
	}
	assert.Equal(t, 150.0, byVersion[2])
}
