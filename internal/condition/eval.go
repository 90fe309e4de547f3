package condition

import (
	"strconv"
	"strings"
	"time"
)

// Env carries the evaluation inputs. Now is the single timestamp the
// literal value "now" resolves to, so repeated evaluations of one
// batch agree on the clock.
type Env struct {
	Context map[string]any
	Now     time.Time
}

// Eval walks the compiled tree. It never returns an error: unresolvable
// lookups and type mismatches evaluate to false.
func (p *Program) Eval(env Env) bool {
	return p.root.eval(env)
}

// An empty all-group is vacuously true.
func (n *allNode) eval(env Env) bool {
	for _, kid := range n.kids {
		if !kid.eval(env) {
			return false
		}
	}
	return true
}

// An empty any-group has no satisfied branch and is false.
func (n *anyNode) eval(env Env) bool {
	for _, kid := range n.kids {
		if kid.eval(env) {
			return true
		}
	}
	return false
}

func (n *clauseNode) eval(env Env) bool {
	left := lookup(env.Context, n.path)

	switch n.op {
	case OpEq:
		return looseEq(left, n.value)
	case OpNe:
		return !looseEq(left, n.value)
	case OpGt, OpGe, OpLt, OpLe:
		return compareOrdered(left, n.value, n.op, env)
	case OpContains:
		return evalContains(left, n.value)
	case OpIn:
		return evalIn(left, n.value)
	case OpRegex:
		s, ok := stringify(left)
		if !ok {
			return false
		}
		return n.re.MatchString(s)
	}
	return false
}

// lookup resolves a dotted path against nested maps. Any missing
// segment yields nil rather than an error.
func lookup(ctx map[string]any, path []string) any {
	var cur any = ctx
	for _, seg := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}
	return cur
}

// Ordering requires both sides to resolve to numbers or to timestamps.
// A nil on either side fails both coercions and the clause is false.
func compareOrdered(left, right any, op Op, env Env) bool {
	if ln, ok := asNumber(left); ok {
		rn, ok := asNumber(right)
		if !ok {
			return false
		}
		return orderHolds(compareFloats(ln, rn), op)
	}
	lt, ok := asTime(left, env)
	if !ok {
		return false
	}
	rt, ok := asTime(right, env)
	if !ok {
		return false
	}
	return orderHolds(lt.Compare(rt), op)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func orderHolds(cmp int, op Op) bool {
	switch op {
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	}
	return false
}

func evalContains(left, right any) bool {
	if ls, ok := left.(string); ok {
		rs, ok := right.(string)
		if !ok {
			return false
		}
		return strings.Contains(ls, rs)
	}
	if items, ok := asList(left); ok {
		for _, item := range items {
			if looseEq(item, right) {
				return true
			}
		}
	}
	return false
}

func evalIn(left, right any) bool {
	if items, ok := asList(right); ok {
		if leftItems, ok := asList(left); ok {
			for _, li := range leftItems {
				for _, ri := range items {
					if looseEq(li, ri) {
						return true
					}
				}
			}
			return false
		}
		for _, ri := range items {
			if looseEq(left, ri) {
				return true
			}
		}
		return false
	}
	if rs, ok := right.(string); ok {
		ls, ok := left.(string)
		if !ok {
			return false
		}
		return strings.Contains(rs, ls)
	}
	return false
}

// looseEq compares scalars across the numeric types JSON decoding and
// context building produce. Values of unrelated kinds are unequal.
func looseEq(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if an, ok := asNumber(a); ok {
		bn, ok := asNumber(b)
		return ok && an == bn
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	return false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(v any, env Env) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if t == "now" {
			return env.Now, true
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

func asList(v any) ([]any, bool) {
	switch items := v.(type) {
	case []any:
		return items, true
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func stringify(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	case bool:
		return strconv.FormatBool(s), true
	case time.Time:
		return s.Format(time.RFC3339), true
	}
	return "", false
}
