package model

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Company is the canonical master record for a listed company. The
// primary key is CVMCode, a numeric string assigned by the securities
// regulator. Records are created on first scrape and mutated by
// re-scrape; they are never deleted.
type Company struct {
	CVMCode              string    `json:"cvm_code"`
	IssuingCompany       string    `json:"issuing_company"`
	CompanyName          string    `json:"company_name"`
	TradingName          string    `json:"trading_name"`
	CNPJ                 string    `json:"cnpj"`
	Sector               string    `json:"sector"`
	Subsector            string    `json:"subsector"`
	Segment              string    `json:"segment"`
	SegmentEng           string    `json:"segment_eng"`
	TickerCodes          []string  `json:"ticker_codes"`
	ISINCodes            []string  `json:"isin_codes"`
	ListingSegment       string    `json:"listing_segment"`
	RegistrarName        string    `json:"registrar_name"`
	Website              string    `json:"website"`
	Market               string    `json:"market"`
	MarketIndicator      string    `json:"market_indicator"`
	Status               string    `json:"status"`
	TypeBDR              string    `json:"type_bdr"`
	DescribeCategory     string    `json:"describe_category_bdr"`
	HasQuotation         bool      `json:"has_quotation"`
	HasEmissions         bool      `json:"has_emissions"`
	HasBDR               bool      `json:"has_bdr"`
	InstitutionCommon    string    `json:"institution_common"`
	InstitutionPreferred string    `json:"institution_preferred"`
	DateListing          time.Time `json:"date_listing"`
	LastDate             time.Time `json:"last_date"`
	DateQuotation        time.Time `json:"date_quotation"`
}

// Validate checks the invariants a company row must hold before it can
// be persisted.
func (c *Company) Validate() error {
	if c.CVMCode == "" {
		return eris.New("model: company missing cvm_code")
	}
	for _, r := range c.CVMCode {
		if r < '0' || r > '9' {
			return eris.Errorf("model: non-numeric cvm_code %q", c.CVMCode)
		}
	}
	return nil
}

// companyAliases maps source field names (and their drifted variants)
// onto canonical setters. Unknown keys are ignored with a warning
// rather than reflected over at runtime.
var companyAliases = map[string]func(*Company, string){
	"codeCVM":              func(c *Company, v string) { c.CVMCode = v },
	"cvm_code":             func(c *Company, v string) { c.CVMCode = v },
	"issuingCompany":       func(c *Company, v string) { c.IssuingCompany = v },
	"companyName":          func(c *Company, v string) { c.CompanyName = v },
	"company_name":         func(c *Company, v string) { c.CompanyName = v },
	"tradingName":          func(c *Company, v string) { c.TradingName = v },
	"cnpj":                 func(c *Company, v string) { c.CNPJ = v },
	"website":              func(c *Company, v string) { c.Website = v },
	"market":               func(c *Company, v string) { c.Market = v },
	"marketIndicator":      func(c *Company, v string) { c.MarketIndicator = v },
	"status":               func(c *Company, v string) { c.Status = v },
	"typeBDR":              func(c *Company, v string) { c.TypeBDR = v },
	"describeCategoryBVMF": func(c *Company, v string) { c.DescribeCategory = v },
	"segment":              func(c *Company, v string) { c.ListingSegment = v },
	"segmentEng":           func(c *Company, v string) { c.SegmentEng = v },
	"institutionCommon":    func(c *Company, v string) { c.InstitutionCommon = v },
	"institutionPreferred": func(c *Company, v string) { c.InstitutionPreferred = v },
}

// ApplyField assigns one named source field onto the company through
// the alias table.
func (c *Company) ApplyField(key, value string) {
	set, ok := companyAliases[key]
	if !ok {
		zap.L().Debug("model: ignoring unknown company field", zap.String("key", key))
		return
	}
	set(c, value)
}

// Merge overlays detail onto the listing record: detail wins on
// overlapping fields when non-zero, listing otherwise.
func (c Company) Merge(detail Company) Company {
	out := c
	s := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	s(&out.CVMCode, detail.CVMCode)
	s(&out.IssuingCompany, detail.IssuingCompany)
	s(&out.CompanyName, detail.CompanyName)
	s(&out.TradingName, detail.TradingName)
	s(&out.CNPJ, detail.CNPJ)
	s(&out.Sector, detail.Sector)
	s(&out.Subsector, detail.Subsector)
	s(&out.Segment, detail.Segment)
	s(&out.SegmentEng, detail.SegmentEng)
	s(&out.ListingSegment, detail.ListingSegment)
	s(&out.RegistrarName, detail.RegistrarName)
	s(&out.Website, detail.Website)
	s(&out.Market, detail.Market)
	s(&out.MarketIndicator, detail.MarketIndicator)
	s(&out.Status, detail.Status)
	s(&out.TypeBDR, detail.TypeBDR)
	s(&out.DescribeCategory, detail.DescribeCategory)
	s(&out.InstitutionCommon, detail.InstitutionCommon)
	s(&out.InstitutionPreferred, detail.InstitutionPreferred)
	if len(detail.TickerCodes) > 0 {
		out.TickerCodes = detail.TickerCodes
	}
	if len(detail.ISINCodes) > 0 {
		out.ISINCodes = detail.ISINCodes
	}
	if !detail.DateListing.IsZero() {
		out.DateListing = detail.DateListing
	}
	if !detail.LastDate.IsZero() {
		out.LastDate = detail.LastDate
	}
	if !detail.DateQuotation.IsZero() {
		out.DateQuotation = detail.DateQuotation
	}
	out.HasQuotation = c.HasQuotation || detail.HasQuotation
	out.HasEmissions = c.HasEmissions || detail.HasEmissions
	out.HasBDR = c.HasBDR || detail.HasBDR
	return out
}
