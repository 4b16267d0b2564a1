// Package standardize rewrites raw statement rows onto a canonical
// chart of accounts, corrects unit-scale outliers and converts
// cumulative quarters to incremental ones.
package standardize

import (
	"regexp"
	"strings"
	"sync"

	"github.com/faustostangler/FL2-sub000/internal/clean"
)

// Op is a filter operator.
type Op string

const (
	OpEquals         Op = "equals"
	OpNotEquals      Op = "not_equals"
	OpStartsWith     Op = "startswith"
	OpNotStartsWith  Op = "not_startswith"
	OpEndsWith       Op = "endswith"
	OpNotEndsWith    Op = "not_endswith"
	OpContainsAny    Op = "contains_any"
	OpContainsNone   Op = "contains_none"
	OpContainsAll    Op = "contains_all"
	OpNotContains    Op = "not_contains"
	OpNotContainsAll Op = "not_contains_all"
	OpLevel          Op = "level"
)

// Filter is one (column, op, values) predicate of a rule node.
type Filter struct {
	Column string // "account" or "description"
	Op     Op
	Values []string
	Level  int // OpLevel only: exact account depth
}

// Node is one line of a section tree. Target is
// "<canonical account> - <canonical description>"; Sub nodes are
// evaluated only against rows under a matched row's account prefix.
type Node struct {
	Target  string
	Filters []Filter
	Sub     []Node
}

func (n Node) targetParts() (account, description string) {
	account, description, ok := strings.Cut(n.Target, " - ")
	if !ok {
		return n.Target, n.Target
	}
	return strings.TrimSpace(account), strings.TrimSpace(description)
}

// Tree is a section rule tree bound to the statement frame it
// classifies.
type Tree struct {
	Section string
	Frame   string
	Nodes   []Node
}

// rowView caches the fold of the matchable columns plus the derived
// account level.
type rowView struct {
	account     string
	description string
	level       int
}

func newRowView(account, description string) rowView {
	return rowView{
		account:     strings.ToLower(strings.TrimSpace(account)),
		description: fold(description),
		level:       strings.Count(account, ".") + 1,
	}
}

// fold lowercases the cleaned text so rule values written in plain
// ascii match accented source descriptions.
func fold(s string) string {
	return strings.ToLower(clean.Text(s))
}

func (v rowView) column(name string) string {
	if name == "account" {
		return v.account
	}
	return v.description
}

// regexCache memoizes compiled alternations keyed by op + values.
var regexCache sync.Map

func cachedPattern(op Op, values []string) *regexp.Regexp {
	key := string(op) + "\x00" + strings.Join(values, "\x00")
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp.Regexp)
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(fold(v))
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))
	actual, _ := regexCache.LoadOrStore(key, re)
	return actual.(*regexp.Regexp)
}

// predicate is a compiled filter.
type predicate func(rowView) bool

// compileFilter lowers one filter into a predicate. The contains
// family compiles to a single cached alternation; prefix/suffix and
// equality ops stay plain string comparisons.
func compileFilter(f Filter) predicate {
	switch f.Op {
	case OpLevel:
		return func(v rowView) bool { return v.level == f.Level }
	case OpContainsAny, OpNotContains:
		re := cachedPattern(OpContainsAny, f.Values)
		if f.Op == OpContainsAny {
			return func(v rowView) bool { return re.MatchString(v.column(f.Column)) }
		}
		return func(v rowView) bool { return !re.MatchString(v.column(f.Column)) }
	case OpContainsNone:
		re := cachedPattern(OpContainsAny, f.Values)
		return func(v rowView) bool { return !re.MatchString(v.column(f.Column)) }
	case OpContainsAll, OpNotContainsAll:
		folded := foldAll(f.Values)
		all := func(v rowView) bool {
			col := v.column(f.Column)
			for _, w := range folded {
				if !strings.Contains(col, w) {
					return false
				}
			}
			return true
		}
		if f.Op == OpContainsAll {
			return all
		}
		return func(v rowView) bool { return !all(v) }
	case OpEquals, OpNotEquals:
		folded := foldAll(f.Values)
		eq := func(v rowView) bool {
			col := v.column(f.Column)
			for _, w := range folded {
				if col == w {
					return true
				}
			}
			return false
		}
		if f.Op == OpEquals {
			return eq
		}
		return func(v rowView) bool { return !eq(v) }
	case OpStartsWith, OpNotStartsWith:
		folded := foldAll(f.Values)
		pre := func(v rowView) bool {
			col := v.column(f.Column)
			for _, w := range folded {
				if strings.HasPrefix(col, w) {
					return true
				}
			}
			return false
		}
		if f.Op == OpStartsWith {
			return pre
		}
		return func(v rowView) bool { return !pre(v) }
	case OpEndsWith, OpNotEndsWith:
		folded := foldAll(f.Values)
		suf := func(v rowView) bool {
			col := v.column(f.Column)
			for _, w := range folded {
				if strings.HasSuffix(col, w) {
					return true
				}
			}
			return false
		}
		if f.Op == OpEndsWith {
			return suf
		}
		return func(v rowView) bool { return !suf(v) }
	default:
		return func(rowView) bool { return false }
	}
}

func foldAll(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if isAccountLike(v) {
			// account codes carry dots that the text fold would strip
			out[i] = strings.ToLower(strings.TrimSpace(v))
		} else {
			out[i] = fold(v)
		}
	}
	return out
}

func isAccountLike(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return s != ""
}

// compiledNode is a Node with its filters lowered once.
type compiledNode struct {
	node     Node
	account  string
	desc     string
	criteria string
	match    predicate
	sub      []compiledNode
}

var nodeCache sync.Map

// mergeIncludeExclude collapses a contains_any and a contains_none on
// the same column into one include/exclude predicate, so the pair is
// compiled and evaluated as a unit.
func mergeIncludeExclude(filters []Filter) []predicate {
	includes := make(map[string]int) // column → filter index
	excludes := make(map[string]int)
	for i, f := range filters {
		switch f.Op {
		case OpContainsAny:
			includes[f.Column] = i
		case OpContainsNone:
			excludes[f.Column] = i
		}
	}

	merged := make(map[int]bool)
	var preds []predicate
	for col, i := range includes {
		j, ok := excludes[col]
		if !ok {
			continue
		}
		inc := cachedPattern(OpContainsAny, filters[i].Values)
		exc := cachedPattern(OpContainsAny, filters[j].Values)
		column := col
		preds = append(preds, func(v rowView) bool {
			s := v.column(column)
			return inc.MatchString(s) && !exc.MatchString(s)
		})
		merged[i], merged[j] = true, true
	}
	for i, f := range filters {
		if !merged[i] {
			preds = append(preds, compileFilter(f))
		}
	}
	return preds
}

func compileNode(section string, n Node) compiledNode {
	preds := mergeIncludeExclude(n.Filters)
	account, desc := n.targetParts()

	sub := make([]compiledNode, 0, len(n.Sub))
	for _, s := range n.Sub {
		sub = append(sub, compileNode(section, s))
	}

	return compiledNode{
		node:     n,
		account:  account,
		desc:     desc,
		criteria: section + " > " + n.Target,
		match: func(v rowView) bool {
			for _, p := range preds {
				if !p(v) {
					return false
				}
			}
			return true
		},
		sub: sub,
	}
}

// compileTree memoizes per tree section; the trees are package-level
// constants so identity is stable.
func compileTree(t Tree) []compiledNode {
	if cached, ok := nodeCache.Load(t.Section); ok {
		return cached.([]compiledNode)
	}
	nodes := make([]compiledNode, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		nodes = append(nodes, compileNode(t.Section, n))
	}
	actual, _ := nodeCache.LoadOrStore(t.Section, nodes)
	return actual.([]compiledNode)
}
