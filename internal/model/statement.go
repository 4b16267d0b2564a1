package model

import (
	"fmt"
	"time"
)

// StatementRow is one raw line of a statement frame. The composite
// primary key is (CompanyName, Quarter, Version, NSDType, Frame,
// Account). NSDType carries the statement group the row came from
// (company data, individual or consolidated financials), which keeps
// same-named frames from the two groups apart. Processed equals
// Version once the row's group has been incorporated into the
// normalized table; nil means untouched.
type StatementRow struct {
	CompanyName string    `json:"company_name"`
	Quarter     time.Time `json:"quarter"`
	Version     int       `json:"version"`
	NSDType     string    `json:"nsd_type"`
	Frame       string    `json:"frame"`
	Account     string    `json:"account"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
	NSD         int       `json:"nsd"`
	Sector      string    `json:"sector"`
	Subsector   string    `json:"subsector"`
	Segment     string    `json:"segment"`
	Processed   *int      `json:"processed,omitempty"`
}

// Key returns the composite primary key as a comparable value.
func (r *StatementRow) Key() StatementKey {
	return StatementKey{
		CompanyName: r.CompanyName,
		Quarter:     r.Quarter.Format("2006-01-02"),
		Version:     r.Version,
		NSDType:     r.NSDType,
		Frame:       r.Frame,
		Account:     r.Account,
	}
}

// StatementKey is the composite primary key of a statement row.
type StatementKey struct {
	CompanyName string
	Quarter     string
	Version     int
	NSDType     string
	Frame       string
	Account     string
}

func (k StatementKey) String() string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%s", k.CompanyName, k.Quarter, k.Version, k.NSDType, k.Frame, k.Account)
}

// NormalizedRow is a statement row after classification, outlier
// correction and quarter adjustment. Account and Description carry the
// canonical chart of accounts; OriginalValue preserves the raw figure
// whenever Value was changed.
type NormalizedRow struct {
	StatementRow
	OriginalValue *float64 `json:"original_value,omitempty"`

	// Diagnostics written by the classifier.
	StandardCriteria string `json:"standard_criteria,omitempty"`
}

// Statement groups stamped onto raw rows.
const (
	GroupCompanyData  = "Dados da Empresa"
	GroupIndividual   = "DFs Individuais"
	GroupConsolidated = "DFs Consolidadas"
)

// Capital-composition synthetic accounts emitted by the capital frame
// parser.
const (
	AccountSharesON   = "00.01.01"
	AccountSharesPN   = "00.01.02"
	AccountTreasuryON = "00.02.01"
	AccountTreasuryPN = "00.02.02"
)
