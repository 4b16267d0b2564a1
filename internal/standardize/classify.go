package standardize

import (
	"sort"
	"strings"

	"github.com/faustostangler/FL2-sub000/internal/model"
)

// keepMaxVersion groups rows by (quarter, type, frame, account) and
// keeps only the highest version of each group. Shadowed versions stay
// in raw storage but never reach normalization.
func keepMaxVersion(rows []model.StatementRow) []model.StatementRow {
	type groupKey struct {
		quarter string
		nsdType string
		frame   string
		account string
	}
	best := make(map[groupKey]model.StatementRow, len(rows))
	order := make([]groupKey, 0, len(rows))
	for _, r := range rows {
		k := groupKey{r.Quarter.Format("2006-01-02"), r.NSDType, r.Frame, r.Account}
		cur, ok := best[k]
		if !ok {
			order = append(order, k)
			best[k] = r
			continue
		}
		if r.Version > cur.Version {
			best[k] = r
		}
	}
	out := make([]model.StatementRow, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// assignment is one classified row before column finalization.
type assignment struct {
	account  string
	desc     string
	criteria string
}

// Classify walks every section tree over the rows and returns the rows
// that matched a node, rewritten onto the canonical chart. Rows no
// node claims are dropped.
func Classify(rows []model.StatementRow) []model.NormalizedRow {
	views := make([]rowView, len(rows))
	for i, r := range rows {
		views[i] = newRowView(r.Account, r.Description)
	}

	assigned := make(map[int]assignment)
	for _, tree := range sectionTrees {
		var indices []int
		for i, r := range rows {
			if r.Frame == tree.Frame {
				indices = append(indices, i)
			}
		}
		if len(indices) == 0 {
			continue
		}
		applyNodes(compileTree(tree), indices, rows, views, assigned)
	}

	out := make([]model.NormalizedRow, 0, len(assigned))
	for i, r := range rows {
		a, ok := assigned[i]
		if !ok {
			continue
		}
		n := model.NormalizedRow{StatementRow: r, StandardCriteria: a.criteria}
		n.Account = a.account
		n.Description = a.desc
		out = append(out, n)
	}
	return out
}

// applyNodes matches each node against the candidate rows. Sub nodes
// see only rows sitting under a matched row's account prefix.
func applyNodes(nodes []compiledNode, candidates []int, rows []model.StatementRow, views []rowView, assigned map[int]assignment) {
	for _, node := range nodes {
		var matched []int
		for _, i := range candidates {
			if node.match(views[i]) {
				matched = append(matched, i)
				assigned[i] = assignment{account: node.account, desc: node.desc, criteria: node.criteria}
			}
		}
		if len(node.sub) == 0 || len(matched) == 0 {
			continue
		}

		prefixes := make([]string, 0, len(matched))
		for _, i := range matched {
			prefixes = append(prefixes, views[i].account)
		}
		var narrowed []int
		for _, i := range candidates {
			if underAny(views[i].account, prefixes) {
				narrowed = append(narrowed, i)
			}
		}
		applyNodes(node.sub, narrowed, rows, views, assigned)
	}
}

// underAny reports whether account sits strictly below one of the
// prefixes in the account hierarchy.
func underAny(account string, prefixes []string) bool {
	for _, p := range prefixes {
		if len(account) > len(p) && strings.HasPrefix(account, p+".") {
			return true
		}
	}
	return false
}

// sortRows orders normalized output deterministically for persistence.
func sortRows(rows []model.NormalizedRow) {
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Quarter.Equal(b.Quarter) {
			return a.Quarter.Before(b.Quarter)
		}
		if a.NSDType != b.NSDType {
			return a.NSDType < b.NSDType
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Account < b.Account
	})
}
