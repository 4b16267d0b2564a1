package clean

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Number parses a numeric string that may follow either the Brazilian
// or the US decimal convention, auto-detected from the positions of
// ',' and '.':
//
//	both present, ',' after '.'  -> '.' thousands, ',' decimal
//	both present, '.' after ','  -> ',' thousands, '.' decimal
//	only ','                     -> ',' decimal
//	only '.', trailing <=2 digits and a single dot -> '.' decimal
//	only '.' otherwise           -> '.' thousands
//	neither                      -> integer
func Number(s string) (float64, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, eris.New("clean: empty number")
	}

	neg := false
	if strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")") {
		neg = true
		t = strings.TrimSpace(t[1 : len(t)-1])
	}
	t = strings.ReplaceAll(t, " ", "")

	lastComma := strings.LastIndex(t, ",")
	lastDot := strings.LastIndex(t, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			// 1.234.567,89
			t = strings.ReplaceAll(t, ".", "")
			t = strings.Replace(t, ",", ".", 1)
		} else {
			// 1,234,567.89
			t = strings.ReplaceAll(t, ",", "")
		}
	case lastComma >= 0:
		// 1234,56
		t = strings.Replace(t, ",", ".", 1)
	case lastDot >= 0:
		trailing := len(t) - lastDot - 1
		if strings.Count(t, ".") == 1 && trailing <= 2 {
			// 12.34 stays a decimal
		} else {
			// 12.345 or 1.234.567 are thousand-grouped integers
			t = strings.ReplaceAll(t, ".", "")
		}
	}

	v, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "clean: parse number %q", s)
	}
	if neg {
		v = -v
	}
	return v, nil
}
