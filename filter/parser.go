package filter

import (
	"net/url"
	"strings"
)

const (
	columnStopChars = "&|()!=<>~"
	valueStopChars  = "&|()"
)

// Parse parses a raw, still URL-encoded query string into a filter tree.
// An empty input yields an empty All chain, which matches everything.
// Malformed syntax yields a *ParseError; it must never be silently dropped.
func Parse(q string) (Node, error) {
	if strings.TrimSpace(q) == "" {
		return &Chain{Kind: All}, nil
	}
	p := &parser{in: q}
	node, err := p.parseAny()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.in) {
		return nil, p.errorf(p.pos, p.in[p.pos:], "unexpected trailing input")
	}
	return node, nil
}

type parser struct {
	in  string
	pos int
}

// parseAny handles '|' chains; '&' binds tighter than '|'.
func (p *parser) parseAny() (Node, error) {
	first, err := p.parseAll()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek() == '|' {
		p.pos++
		next, err := p.parseAll()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &Chain{Kind: Any, Children: children}, nil
}

func (p *parser) parseAll() (Node, error) {
	first, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	children := []Node{first}
	for p.peek() == '&' {
		p.pos++
		next, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		children = append(children, next)
	}
	if len(children) == 1 {
		return first, nil
	}
	return &Chain{Kind: All, Children: children}, nil
}

func (p *parser) parseFactor() (Node, error) {
	switch p.peek() {
	case '!':
		// negation only when it does not form a '!=' / '!~' operator,
		// which cannot occur at factor position
		p.pos++
		child, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &Chain{Kind: None, Children: []Node{child}}, nil
	case '(':
		start := p.pos
		p.pos++
		node, err := p.parseAny()
		if err != nil {
			return nil, err
		}
		if p.peek() != ')' {
			return nil, p.errorf(start, p.in[start:], "unclosed group")
		}
		p.pos++
		return node, nil
	}
	return p.parseCondition()
}

func (p *parser) parseCondition() (Node, error) {
	start := p.pos
	rawColumn := p.scan(columnStopChars)
	if rawColumn == "" {
		return nil, p.errorf(start, fragmentAt(p.in, start), "expected a column name")
	}
	column, err := url.QueryUnescape(rawColumn)
	if err != nil {
		return nil, p.errorf(start, rawColumn, "undecodable column name")
	}

	op, err := p.scanOperator()
	if err != nil {
		return nil, err
	}
	if op == Exists {
		return &Condition{Column: column, Op: Exists}, nil
	}

	valueStart := p.pos
	rawValue := p.scan(valueStopChars)
	value, err := url.QueryUnescape(rawValue)
	if err != nil {
		return nil, p.errorf(valueStart, rawValue, "undecodable value")
	}
	return &Condition{Column: column, Op: op, Value: value}, nil
}

func (p *parser) scanOperator() (Operator, error) {
	switch p.peek() {
	case 0, '&', '|', ')':
		// bare column, existence check
		return Exists, nil
	case '=':
		p.pos++
		return Equal, nil
	case '~':
		p.pos++
		return Like, nil
	case '<':
		p.pos++
		if p.peek() == '=' {
			p.pos++
			return LessEq, nil
		}
		return Less, nil
	case '>':
		p.pos++
		if p.peek() == '=' {
			p.pos++
			return GreaterEq, nil
		}
		return Greater, nil
	case '!':
		p.pos++
		switch p.peek() {
		case '=':
			p.pos++
			return Unequal, nil
		case '~':
			p.pos++
			return Unlike, nil
		}
		return Exists, p.errorf(p.pos-1, fragmentAt(p.in, p.pos-1), "expected '=' or '~' after '!'")
	}
	return Exists, p.errorf(p.pos, fragmentAt(p.in, p.pos), "expected an operator")
}

func (p *parser) peek() byte {
	if p.pos >= len(p.in) {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) scan(stop string) string {
	start := p.pos
	for p.pos < len(p.in) && !strings.ContainsRune(stop, rune(p.in[p.pos])) {
		p.pos++
	}
	return p.in[start:p.pos]
}

func (p *parser) errorf(pos int, fragment, reason string) *ParseError {
	return &ParseError{Pos: pos, Fragment: fragment, Reason: reason}
}

// fragmentAt trims the remainder of the input to a short excerpt for error
// messages.
func fragmentAt(in string, pos int) string {
	if pos >= len(in) {
		return ""
	}
	rest := in[pos:]
	if len(rest) > 20 {
		rest = rest[:20] + "..."
	}
	return rest
}
