package condition

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Op is a comparison operator in a policy clause.
type Op string

const (
	OpEq       Op = "="
	OpNe       Op = "!="
	OpGt       Op = ">"
	OpGe       Op = ">="
	OpLt       Op = "<"
	OpLe       Op = "<="
	OpContains Op = "contains"
	OpIn       Op = "in"
	OpRegex    Op = "regex"
)

// Clause is a single field test.
type Clause struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`
	Value any    `json:"value"`
}

// Condition is a policy condition tree. Exactly one of Clause, All or
// Any is set. The JSON form is the external contract shared with the
// dashboard and the policy store:
//
//	{"field": "...", "op": "...", "value": ...}
//	{"all": [Condition, ...]}
//	{"any": [Condition, ...]}
type Condition struct {
	Clause *Clause
	All    []Condition
	Any    []Condition
}

type rawCondition struct {
	Field *string         `json:"field"`
	Op    *string         `json:"op"`
	Value json.RawMessage `json:"value"`
	All   []Condition     `json:"all"`
	Any   []Condition     `json:"any"`
}

// UnmarshalJSON decodes the tagged union. A node that mixes clause
// keys with "all"/"any", or carries none of them, is malformed.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var raw rawCondition
	if err := json.Unmarshal(data, &raw); err != nil {
		return eris.Wrap(err, "condition: decode")
	}

	forms := 0
	if raw.All != nil {
		forms++
	}
	if raw.Any != nil {
		forms++
	}
	if raw.Field != nil || raw.Op != nil {
		forms++
	}
	if forms != 1 {
		return eris.New("condition: node must be exactly one of clause, all, any")
	}

	switch {
	case raw.All != nil:
		*c = Condition{All: raw.All}
	case raw.Any != nil:
		*c = Condition{Any: raw.Any}
	default:
		if raw.Field == nil || raw.Op == nil {
			return eris.New("condition: clause requires field and op")
		}
		var value any
		if len(raw.Value) > 0 {
			if err := json.Unmarshal(raw.Value, &value); err != nil {
				return eris.Wrap(err, "condition: decode clause value")
			}
		}
		*c = Condition{Clause: &Clause{Field: *raw.Field, Op: Op(*raw.Op), Value: value}}
	}
	return nil
}

// MarshalJSON re-encodes the union in its contract form.
func (c Condition) MarshalJSON() ([]byte, error) {
	switch {
	case c.All != nil:
		return json.Marshal(map[string][]Condition{"all": c.All})
	case c.Any != nil:
		return json.Marshal(map[string][]Condition{"any": c.Any})
	case c.Clause != nil:
		return json.Marshal(c.Clause)
	}
	return nil, eris.New("condition: empty node")
}
