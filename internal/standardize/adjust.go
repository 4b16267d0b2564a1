package standardize

import (
	"math"
	"sort"
	"strings"

	"github.com/faustostangler/FL2-sub000/internal/model"
)

// micro converts a value to integer microunits so scale comparisons
// are exact instead of float-fuzzy.
func micro(v float64) int64 {
	return int64(math.Round(v * 1e6))
}

const outlierWindow = 5

// CorrectOutliers repairs unit-scale mistakes: within each
// (type, account) series ordered by quarter, a value whose ×1000 or
// ÷1000 multiple equals the mean of up to five neighbors on either
// side is replaced by that mean. The raw figure moves to
// OriginalValue.
func CorrectOutliers(rows []model.NormalizedRow) {
	type seriesKey struct {
		nsdType string
		account string
	}
	series := make(map[seriesKey][]int)
	for i, r := range rows {
		k := seriesKey{r.NSDType, r.Account}
		series[k] = append(series[k], i)
	}

	for _, idx := range series {
		sort.Slice(idx, func(a, b int) bool {
			return rows[idx[a]].Quarter.Before(rows[idx[b]].Quarter)
		})
		for pos, i := range idx {
			v := rows[i].Value
			if v == 0 {
				continue
			}
			for _, side := range [][]int{neighbors(idx, pos, -1), neighbors(idx, pos, +1)} {
				if len(side) == 0 {
					continue
				}
				var sum float64
				for _, j := range side {
					sum += rows[j].Value
				}
				mean := sum / float64(len(side))
				if micro(mean) == 0 {
					continue
				}
				if micro(mean) == micro(v*1000) || micro(mean) == micro(v/1000) {
					orig := v
					rows[i].OriginalValue = &orig
					rows[i].Value = mean
					break
				}
			}
		}
	}
}

// neighbors returns up to outlierWindow series positions on one side
// of pos.
func neighbors(idx []int, pos, dir int) []int {
	var out []int
	for p := pos + dir; p >= 0 && p < len(idx) && len(out) < outlierWindow; p += dir {
		out = append(out, idx[p])
	}
	return out
}

// quarterSlot maps a reference date onto its quarter ordinal 1..4;
// zero means a date off the quarterly grid.
func quarterSlot(month int) int {
	switch month {
	case 3:
		return 1
	case 6:
		return 2
	case 9:
		return 3
	case 12:
		return 4
	}
	return 0
}

func accountSection(account string) string {
	if i := strings.IndexByte(account, '.'); i > 0 {
		return account[:i]
	}
	return account
}

// AdjustQuarters converts year-to-date figures into per-quarter ones.
// Income-statement sections (03, 04) report Q4 as the full year, so Q4
// drops the sum of the first three quarters when all are present.
// Cash-flow style sections (06, 07) are cumulative every quarter, so
// each quarter drops the already-adjusted earlier ones. A missing
// earlier quarter inhibits the adjustment for that slot.
func AdjustQuarters(rows []model.NormalizedRow) {
	type groupKey struct {
		nsdType string
		frame   string
		account string
		year    int
	}
	groups := make(map[groupKey][4]int)
	for i, r := range rows {
		section := accountSection(r.Account)
		if section != "03" && section != "04" && section != "06" && section != "07" {
			continue
		}
		slot := quarterSlot(int(r.Quarter.Month()))
		if slot == 0 {
			continue
		}
		k := groupKey{r.NSDType, r.Frame, r.Account, r.Quarter.Year()}
		g, ok := groups[k]
		if !ok {
			g = [4]int{-1, -1, -1, -1}
		}
		g[slot-1] = i
		groups[k] = g
	}

	for k, g := range groups {
		section := accountSection(k.account)
		switch section {
		case "03", "04":
			if g[0] < 0 || g[1] < 0 || g[2] < 0 || g[3] < 0 {
				continue
			}
			ytd := rows[g[0]].Value + rows[g[1]].Value + rows[g[2]].Value
			adjustValue(rows, g[3], rows[g[3]].Value-ytd)
		case "06", "07":
			for q := 1; q < 4; q++ {
				if g[q] < 0 {
					continue
				}
				var sum float64
				complete := true
				for p := 0; p < q; p++ {
					if g[p] < 0 {
						complete = false
						break
					}
					sum += rows[g[p]].Value
				}
				if !complete {
					continue
				}
				adjustValue(rows, g[q], rows[g[q]].Value-sum)
			}
		}
	}
}

func adjustValue(rows []model.NormalizedRow, i int, newValue float64) {
	if micro(newValue) == micro(rows[i].Value) {
		return
	}
	if rows[i].OriginalValue == nil {
		orig := rows[i].Value
		rows[i].OriginalValue = &orig
	}
	rows[i].Value = newValue
}
