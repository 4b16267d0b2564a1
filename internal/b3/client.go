package b3

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/faustostangler/FL2-sub000/internal/config"
	"github.com/faustostangler/FL2-sub000/internal/monitoring"
	"github.com/faustostangler/FL2-sub000/internal/pacer"
)

// Client wraps the exchange's JSON API. Each attempt carries a rotated
// User-Agent / Referer / Accept-Language triple; failures pace and
// retry without bound, matching the HTML fetch client's contract.
type Client struct {
	http     *resty.Client
	cfg      config.B3Config
	hcfg     config.HTTPConfig
	metrics  *monitoring.Collector
	pc       *pacer.Pacer
	randIntN func(n int) int

	// maxAttempts caps the retry loop; zero means retry forever.
	maxAttempts int
}

// Options overrides client defaults, mainly for tests.
type Options struct {
	RandIntN    func(n int) int
	MaxAttempts int
}

// NewClient builds a Client over the configured endpoints.
func NewClient(cfg config.B3Config, hcfg config.HTTPConfig, metrics *monitoring.Collector, pc *pacer.Pacer, opts ...Options) *Client {
	timeout := time.Duration(hcfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	c := &Client{
		http:     resty.New().SetTimeout(timeout),
		cfg:      cfg,
		hcfg:     hcfg,
		metrics:  metrics,
		pc:       pc,
		randIntN: rand.IntN,
	}
	if len(opts) > 0 {
		if opts[0].RandIntN != nil {
			c.randIntN = opts[0].RandIntN
		}
		c.maxAttempts = opts[0].MaxAttempts
	}
	return c
}

func (c *Client) pick(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[c.randIntN(len(list))]
}

// getJSON fetches url until it succeeds and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, url, workerID string, out any) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return eris.Wrap(err, "b3: fetch cancelled")
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("User-Agent", c.pick(c.hcfg.UserAgents)).
			SetHeader("Referer", c.pick(c.hcfg.Referers)).
			SetHeader("Accept-Language", c.pick(c.hcfg.Languages)).
			Get(url)
		switch {
		case err != nil:
			err = eris.Wrap(err, "b3: request")
		case !resp.IsSuccess():
			err = eris.Errorf("b3: unexpected status %d", resp.StatusCode())
		default:
			body := resp.Body()
			if c.metrics != nil {
				c.metrics.RecordNetworkBytes(uint64(len(body)), workerID)
			}
			if err := json.Unmarshal(body, out); err != nil {
				return eris.Wrap(err, "b3: decode response")
			}
			if c.metrics != nil {
				c.metrics.RecordProcessingBytes(uint64(len(body)))
			}
			return nil
		}

		if c.metrics != nil {
			c.metrics.RecordFailure()
		}
		if c.maxAttempts > 0 && attempt >= c.maxAttempts {
			return eris.Wrapf(err, "b3: giving up after %d attempts", attempt)
		}
		zap.L().Warn("b3: fetch failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		c.pc.Pace(ctx, time.Second)
	}
}

// listingResponse is one page of the listing endpoint.
type listingResponse struct {
	Results []ListingRow `json:"results"`
	Page    struct {
		TotalPages int `json:"totalPages"`
	} `json:"page"`
}

// ListingRow is one company as the listing endpoint reports it.
type ListingRow struct {
	CodeCVM         json.Number `json:"codeCVM"`
	IssuingCompany  string      `json:"issuingCompany"`
	CompanyName     string      `json:"companyName"`
	TradingName     string      `json:"tradingName"`
	CNPJ            string      `json:"cnpj"`
	MarketIndicator json.Number `json:"marketIndicator"`
	TypeBDR         string      `json:"typeBDR"`
	DateListing     string      `json:"dateListing"`
	Status          string      `json:"status"`
	Segment         string      `json:"segment"`
	SegmentEng      string      `json:"segmentEng"`
	Market          string      `json:"market"`
}

// detailResponse is the per-company detail payload. Only the fields
// the canonical record needs are decoded.
type detailResponse struct {
	CodeCVM                json.Number `json:"codeCVM"`
	IssuingCompany         string      `json:"issuingCompany"`
	CompanyName            string      `json:"companyName"`
	TradingName            string      `json:"tradingName"`
	CNPJ                   string      `json:"cnpj"`
	IndustryClassification string      `json:"industryClassification"`
	Website                string      `json:"website"`
	HasQuotation           bool        `json:"hasQuotation"`
	HasEmissions           bool        `json:"hasEmissions"`
	HasBDR                 bool        `json:"hasBDR"`
	Status                 string      `json:"status"`
	MarketIndicator        json.Number `json:"marketIndicator"`
	Market                 string      `json:"market"`
	InstitutionCommon      string      `json:"institutionCommon"`
	InstitutionPreferred   string      `json:"institutionPreferred"`
	TypeBDR                string      `json:"typeBDR"`
	DescribeCategoryBVMF   string      `json:"describeCategoryBVMF"`
	DateListing            string      `json:"dateListing"`
	LastDate               string      `json:"lastDate"`
	DateQuotation          string      `json:"dateQuotation"`
	Segment                string      `json:"segment"`
	SegmentEng             string      `json:"segmentEng"`
	OtherCodes             []struct {
		Code string `json:"code"`
		ISIN string `json:"isin"`
	} `json:"otherCodes"`
}

// FetchListingPage retrieves one page of the company listing.
func (c *Client) FetchListingPage(ctx context.Context, page int, workerID string) (*listingResponse, error) {
	env, err := EncodeEnvelope(listingRequest{
		Language:   c.cfg.Language,
		PageNumber: page,
		PageSize:   c.cfg.PageSize,
	})
	if err != nil {
		return nil, err
	}
	var out listingResponse
	if err := c.getJSON(ctx, c.cfg.CompanyInitialURL+env, workerID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchDetail retrieves the detail record for one CVM code.
func (c *Client) FetchDetail(ctx context.Context, cvmCode, workerID string) (*detailResponse, error) {
	env, err := EncodeEnvelope(detailRequest{
		CodeCVM:  cvmCode,
		Language: c.cfg.Language,
	})
	if err != nil {
		return nil, err
	}
	var out detailResponse
	if err := c.getJSON(ctx, c.cfg.CompanyDetailURL+env, workerID, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
