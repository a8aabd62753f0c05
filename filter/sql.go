package filter

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// UnknownColumnError rejects a condition whose column is not on the
// endpoint's allow-list.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("invalid filter column %q", e.Column)
}

// InvalidValueError rejects a condition whose value cannot be bound against
// the column, e.g. a malformed UUID on the id column.
type InvalidValueError struct {
	Column string
	Value  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid filter value %q for column %q: %s", e.Value, e.Column, e.Reason)
}

// ToSQL translates a filter tree into a SQL boolean fragment plus its bound
// parameters, numbered $1..$n. It is a pure transformation: the input tree is
// never mutated and no database is touched.
//
// allowed maps logical column names to physical ones (e.g. "id" ->
// "contact.external_uuid"); any column outside the map is rejected. Values on
// the logical "id" column must be well-formed UUIDs. All values are bound as
// parameters, never spliced into the fragment.
func ToSQL(node Node, allowed map[string]string) (string, []interface{}, error) {
	t := &translator{allowed: allowed}
	fragment, err := t.walk(node)
	if err != nil {
		return "", nil, err
	}
	return fragment, t.args, nil
}

type translator struct {
	allowed map[string]string
	args    []interface{}
}

func (t *translator) walk(node Node) (string, error) {
	switch n := node.(type) {
	case *Condition:
		return t.condition(n)
	case *Chain:
		return t.chain(n)
	}
	return "", fmt.Errorf("unsupported filter node %T", node)
}

func (t *translator) condition(c *Condition) (string, error) {
	column, ok := t.allowed[c.Column]
	if !ok {
		return "", &UnknownColumnError{Column: c.Column}
	}

	if c.Op == Exists {
		return column + " IS NOT NULL", nil
	}

	if c.Column == "id" {
		if _, err := uuid.Parse(c.Value); err != nil {
			return "", &InvalidValueError{Column: c.Column, Value: c.Value, Reason: "not a valid UUID"}
		}
	}

	switch c.Op {
	case Like:
		return t.bind(column+" ILIKE $%d", likePattern(c.Value)), nil
	case Unlike:
		return t.bind(column+" NOT ILIKE $%d", likePattern(c.Value)), nil
	case Equal, Unequal, Less, LessEq, Greater, GreaterEq:
		return t.bind(fmt.Sprintf("%s %s $%%d", column, sqlOperator(c.Op)), c.Value), nil
	}
	return "", fmt.Errorf("unsupported filter operator %q", c.Op)
}

func (t *translator) chain(ch *Chain) (string, error) {
	if len(ch.Children) == 0 {
		// empty chain matches everything
		return "TRUE", nil
	}

	parts := make([]string, 0, len(ch.Children))
	for _, child := range ch.Children {
		fragment, err := t.walk(child)
		if err != nil {
			return "", err
		}
		if _, nested := child.(*Chain); nested {
			fragment = "(" + fragment + ")"
		}
		parts = append(parts, fragment)
	}

	switch ch.Kind {
	case All:
		return strings.Join(parts, " AND "), nil
	case Any:
		return strings.Join(parts, " OR "), nil
	case None:
		return "NOT (" + strings.Join(parts, " AND ") + ")", nil
	}
	return "", fmt.Errorf("unsupported chain kind %q", ch.Kind)
}

// bind appends a parameter and fills its positional placeholder into format.
func (t *translator) bind(format string, value interface{}) string {
	t.args = append(t.args, value)
	return fmt.Sprintf(format, len(t.args))
}

func sqlOperator(op Operator) string {
	if op == Unequal {
		return "!="
	}
	return string(op)
}

// likePattern converts the filter wildcard '*' into SQL's '%', escaping any
// literal pattern characters in the value.
func likePattern(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(value)
	return strings.ReplaceAll(escaped, "*", "%")
}
