package condition

import (
	"fmt"
	"regexp"
	"strings"
)

// ReasonUnsupportedOperator is the Reason a ConfigurationError
// carries when a clause names an operator outside the fixed set.
const ReasonUnsupportedOperator = "unsupported operator"

// ConfigurationError reports a policy condition that cannot be
// compiled. It is raised once at policy load and carried as a
// diagnostic; evaluation never sees the broken policy.
type ConfigurationError struct {
	PolicyID string
	Field    string
	Op       Op
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("policy %q: field %q op %q: %s", e.PolicyID, e.Field, e.Op, e.Reason)
	}
	return fmt.Sprintf("policy %q: %s", e.PolicyID, e.Reason)
}

var supportedOps = map[Op]bool{
	OpEq:       true,
	OpNe:       true,
	OpGt:       true,
	OpGe:       true,
	OpLt:       true,
	OpLe:       true,
	OpContains: true,
	OpIn:       true,
	OpRegex:    true,
}

// Program is a compiled condition ready for evaluation. Compilation
// validates operators, field paths and regex patterns once so the
// evaluation path stays error-free.
type Program struct {
	root node
}

type node interface {
	eval(env Env) bool
}

type clauseNode struct {
	path  []string
	op    Op
	value any
	re    *regexp.Regexp
}

type allNode struct{ kids []node }

type anyNode struct{ kids []node }

// Compile validates the tree and pre-compiles regex clauses. The
// policyID only labels errors.
func Compile(c Condition, policyID string) (*Program, error) {
	root, err := compileNode(c, policyID)
	if err != nil {
		return nil, err
	}
	return &Program{root: root}, nil
}

func compileNode(c Condition, policyID string) (node, error) {
	switch {
	case c.All != nil:
		kids, err := compileGroup(c.All, policyID)
		if err != nil {
			return nil, err
		}
		return &allNode{kids: kids}, nil
	case c.Any != nil:
		kids, err := compileGroup(c.Any, policyID)
		if err != nil {
			return nil, err
		}
		return &anyNode{kids: kids}, nil
	case c.Clause != nil:
		return compileClause(c.Clause, policyID)
	}
	return nil, &ConfigurationError{PolicyID: policyID, Reason: "empty condition node"}
}

func compileGroup(kids []Condition, policyID string) ([]node, error) {
	nodes := make([]node, 0, len(kids))
	for _, kid := range kids {
		n, err := compileNode(kid, policyID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func compileClause(cl *Clause, policyID string) (node, error) {
	if cl.Field == "" {
		return nil, &ConfigurationError{PolicyID: policyID, Op: cl.Op, Reason: "empty field path"}
	}
	if !supportedOps[cl.Op] {
		return nil, &ConfigurationError{
			PolicyID: policyID,
			Field:    cl.Field,
			Op:       cl.Op,
			Reason:   ReasonUnsupportedOperator,
		}
	}

	n := &clauseNode{path: strings.Split(cl.Field, "."), op: cl.Op, value: cl.Value}
	for _, seg := range n.path {
		if seg == "" {
			return nil, &ConfigurationError{
				PolicyID: policyID,
				Field:    cl.Field,
				Op:       cl.Op,
				Reason:   "malformed field path",
			}
		}
	}

	if cl.Op == OpRegex {
		pattern, ok := cl.Value.(string)
		if !ok {
			return nil, &ConfigurationError{
				PolicyID: policyID,
				Field:    cl.Field,
				Op:       cl.Op,
				Reason:   "regex value must be a string",
			}
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, &ConfigurationError{
				PolicyID: policyID,
				Field:    cl.Field,
				Op:       cl.Op,
				Reason:   "invalid regex: " + err.Error(),
			}
		}
		n.re = re
	}
	return n, nil
}
