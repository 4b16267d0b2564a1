package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Petrobrás S.A. EM RECUPERACAO JUDICIAL", "PETROBRAS SA"},
		{"  Vale   do Rio Doce ", "VALE DO RIO DOCE"},
		{"Lojas Americanas S.A. em liquidação", "LOJAS AMERICANAS SA"},
		{"AÇÚCAR GUARANI", "ACUCAR GUARANI"},
		{"Banco do Brasil", "BANCO DO BRASIL"},
		{"EMPRESA FALIDA", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Text(tt.in), "input %q", tt.in)
	}
}

func TestIndustry(t *testing.T) {
	sector, subsector, segment := Industry("Financeiro / Intermediários Financeiros / Bancos")
	assert.Equal(t, "FINANCEIRO", sector)
	assert.Equal(t, "INTERMEDIARIOS FINANCEIROS", subsector)
	assert.Equal(t, "BANCOS", segment)

	sector, subsector, segment = Industry("Energia Elétrica")
	assert.Equal(t, "ENERGIA ELETRICA", sector)
	assert.Empty(t, subsector)
	assert.Empty(t, segment)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"1.234.567,89", 1234567.89},
		{"1,234,567.89", 1234567.89},
		{"1234", 1234.0},
		{"12.34", 12.34},
		{"12.345", 12345.0},
		{"1234,56", 1234.56},
		{"0,5", 0.5},
		{"-1.000", -1000},
		{"(2.500)", -2500},
	}
	for _, tt := range tests {
		got, err := Number(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.InDelta(t, tt.want, got, 1e-9, "input %q", tt.in)
	}
}

func TestNumberErrors(t *testing.T) {
	for _, in := range []string{"", "  ", "abc", "12,34,56x"} {
		_, err := Number(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestQuarter(t *testing.T) {
	got, err := Quarter("31/03/2023")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 3, 31, 0, 0, 0, 0, time.UTC), got)

	got, err = Quarter("2023")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), got)

	_, err = Quarter("not a date")
	assert.Error(t, err)
}

func TestSentDate(t *testing.T) {
	got, err := SentDate("15/05/2023 18:42:07")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 15, 18, 42, 7, 0, time.UTC), got)

	got, err = SentDate("15/05/2023")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 5, 15, 0, 0, 0, 0, time.UTC), got)

	_, err = SentDate("")
	assert.Error(t, err)
}
