// Package b3 ingests the exchange's listed-companies registry: a
// paginated listing endpoint plus a per-company detail endpoint, both
// addressed by a base64-encoded JSON envelope in the URL path.
package b3

import (
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
)

// EncodeEnvelope serializes v as compact JSON and base64-encodes it
// for use as a URL path suffix.
func EncodeEnvelope(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", eris.Wrap(err, "b3: marshal envelope")
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeEnvelope reverses EncodeEnvelope. Trailing slashes are
// tolerated since callers sometimes hand in the whole path tail.
func DecodeEnvelope(s string, v any) error {
	s = strings.TrimRight(s, "/")
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return eris.Wrap(err, "b3: decode envelope base64")
	}
	return eris.Wrap(json.Unmarshal(raw, v), "b3: unmarshal envelope")
}

// listingRequest is the page-query envelope for the listing endpoint.
type listingRequest struct {
	Language   string `json:"language"`
	PageNumber int    `json:"pageNumber"`
	PageSize   int    `json:"pageSize"`
}

// detailRequest is the envelope for the per-company detail endpoint.
type detailRequest struct {
	CodeCVM  string `json:"codeCVM"`
	Language string `json:"language"`
}
