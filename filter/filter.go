// Package filter parses URL query string filter expressions into a boolean
// condition tree and translates that tree into parameterized SQL.
//
// The expression language is the one the search bars and the REST API share:
// column-operator-value terms joined with '&' (all) and '|' (any), negated
// with '!' and grouped with parentheses, e.g.
//
//	full_name~*ops*&(username=alice|username=bob)
package filter

import "fmt"

// Operator is a comparison operator of a single condition.
type Operator string

const (
	Equal     Operator = "="
	Unequal   Operator = "!="
	Less      Operator = "<"
	LessEq    Operator = "<="
	Greater   Operator = ">"
	GreaterEq Operator = ">="
	Like      Operator = "~"
	Unlike    Operator = "!~"
	// Exists marks a bare column with no operator and no value; it is
	// an existence check rather than a comparison.
	Exists Operator = ""
)

// ChainKind is the boolean combinator of a Chain node.
type ChainKind string

const (
	All  ChainKind = "ALL"
	Any  ChainKind = "ANY"
	None ChainKind = "NONE"
)

// Node is one node of a parsed filter tree: either *Condition or *Chain.
type Node interface {
	filterNode()
}

// Condition is a single column-operator-value term.
type Condition struct {
	Column string
	Op     Operator
	Value  string
}

// Chain combines child nodes with a boolean operator. An empty All chain
// matches everything.
type Chain struct {
	Kind     ChainKind
	Children []Node
}

func (*Condition) filterNode() {}
func (*Chain) filterNode()     {}

// ParseError reports malformed filter syntax together with the offending
// fragment, so callers can surface it in a 400 response.
type ParseError struct {
	Pos      int
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	if e.Fragment == "" {
		return fmt.Sprintf("invalid filter: %s at position %d", e.Reason, e.Pos)
	}
	return fmt.Sprintf("invalid filter: %s near %q at position %d", e.Reason, e.Fragment, e.Pos)
}
