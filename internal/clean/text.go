package clean

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// asciiFold strips diacritics: NFD decomposition, drop combining
// marks, recompose.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// legalSuffixes are corporate-status phrases appended to company names
// in filings. They are removed as whole words after folding so the
// same company links across sources regardless of its current status.
var legalSuffixes = []string{
	"EM LIQUIDACAO EXTRAJUDICIAL",
	"EM LIQUIDACAO",
	"EM RECUPERACAO JUDICIAL",
	"EM RECUPERACAO EXTRAJUDICIAL",
	"EXTRAJUDICIAL",
	"EMPRESA FALIDA",
	"EM FALENCIA",
}

var (
	punctRe  = regexp.MustCompile(`[^\pL\pN ]+`)
	spaceRe  = regexp.MustCompile(`\s+`)
	suffixRe *regexp.Regexp
)

func init() {
	quoted := make([]string, len(legalSuffixes))
	for i, s := range legalSuffixes {
		quoted[i] = regexp.QuoteMeta(s)
	}
	suffixRe = regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Text normalizes free text for linkage: ASCII-fold, strip
// punctuation, uppercase, collapse whitespace, and remove legal-status
// suffixes.
//
//	"Petrobrás S.A. EM RECUPERACAO JUDICIAL" -> "PETROBRAS SA"
func Text(s string) string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		folded = s
	}
	out := strings.ToUpper(folded)
	out = punctRe.ReplaceAllString(out, "")
	out = spaceRe.ReplaceAllString(out, " ")
	out = suffixRe.ReplaceAllString(out, "")
	out = spaceRe.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// Industry splits an "A / B / C" classification string into its three
// levels, cleaned. Missing positions come back empty.
func Industry(s string) (sector, subsector, segment string) {
	parts := strings.Split(s, "/")
	get := func(i int) string {
		if i >= len(parts) {
			return ""
		}
		return Text(parts[i])
	}
	return get(0), get(1), get(2)
}
