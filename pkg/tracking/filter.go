package tracking

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mlbridge-io/mlbridge/pkg/api"
)

// Filter is a parsed run search filter: a conjunction of comparisons.
type Filter []Comparison

// Comparison is one "<entity>.<key> <op> '<value>'" clause.
type Comparison struct {
	Entity string // "tags" or "attributes"
	Key    string
	Op     string // "=" or "!="
	Value  string
}

// ParseFilter parses the run search filter grammar used by the protocol:
//
//	tags.<key> = '<value>'
//	tags.`quoted key` != "<value>"
//	attributes.status = 'RUNNING'
//	attributes.run_name = 'store_1'
//
// Clauses are joined with AND. Keys may be bare (dots allowed), backquoted,
// or double-quoted; values are single- or double-quoted. An empty filter
// matches every run.
func ParseFilter(s string) (Filter, error) {
	p := &filterParser{input: s}
	f, err := p.parse()
	if err != nil {
		return nil, api.NewInvalidParameterError("invalid filter %q: %s", s, err)
	}
	return f, nil
}

// Matches reports whether a run satisfies every clause of the filter.
func (f Filter) Matches(run *api.Run) bool {
	for _, c := range f {
		if !c.matches(run) {
			return false
		}
	}
	return true
}

func (c Comparison) matches(run *api.Run) bool {
	var actual string
	var present bool

	switch c.Entity {
	case "tags":
		actual, present = run.Data.Tag(c.Key)
	case "attributes":
		switch c.Key {
		case "status":
			actual, present = string(run.Info.Status), true
		case "run_name":
			actual, present = run.Info.RunName, true
		case "run_id":
			actual, present = run.Info.RunID, true
		}
	}

	switch c.Op {
	case "=":
		return present && actual == c.Value
	case "!=":
		return !present || actual != c.Value
	}
	return false
}

type filterParser struct {
	input string
	pos   int
}

func (p *filterParser) parse() (Filter, error) {
	var f Filter
	p.skipSpace()
	if p.eof() {
		return f, nil
	}
	for {
		c, err := p.comparison()
		if err != nil {
			return nil, err
		}
		f = append(f, c)

		p.skipSpace()
		if p.eof() {
			return f, nil
		}
		word := p.word()
		if !strings.EqualFold(word, "and") {
			return nil, fmt.Errorf("expected AND at position %d", p.pos-len(word))
		}
	}
}

func (p *filterParser) comparison() (Comparison, error) {
	var c Comparison

	p.skipSpace()
	entity := p.word()
	switch entity {
	case "tags", "attributes":
		c.Entity = entity
	case "params", "metrics":
		return c, fmt.Errorf("filtering on %s is not supported", entity)
	default:
		return c, fmt.Errorf("unknown entity %q", entity)
	}

	if !p.consume('.') {
		return c, fmt.Errorf("expected '.' after %s", entity)
	}

	key, err := p.key()
	if err != nil {
		return c, err
	}
	c.Key = key

	p.skipSpace()
	op, err := p.operator()
	if err != nil {
		return c, err
	}
	c.Op = op

	p.skipSpace()
	value, err := p.quoted()
	if err != nil {
		return c, err
	}
	c.Value = value
	return c, nil
}

// key reads a bare, backquoted, or double-quoted key. Bare keys may contain
// dots, which lets the common "tags.mlflow.parentRunId" form parse without
// quoting.
func (p *filterParser) key() (string, error) {
	if p.peek() == '`' || p.peek() == '"' {
		return p.readUntil(p.next())
	}
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsSpace(r) || r == '=' || r == '!' {
			break
		}
		p.next()
	}
	if p.pos == start {
		return "", fmt.Errorf("empty key at position %d", start)
	}
	return p.input[start:p.pos], nil
}

func (p *filterParser) operator() (string, error) {
	switch p.peek() {
	case '=':
		p.next()
		return "=", nil
	case '!':
		p.next()
		if !p.consume('=') {
			return "", fmt.Errorf("expected '=' after '!' at position %d", p.pos)
		}
		return "!=", nil
	}
	return "", fmt.Errorf("expected comparison operator at position %d", p.pos)
}

func (p *filterParser) quoted() (string, error) {
	q := p.peek()
	if q != '\'' && q != '"' {
		return "", fmt.Errorf("expected quoted value at position %d", p.pos)
	}
	p.next()
	return p.readUntil(q)
}

func (p *filterParser) readUntil(q rune) (string, error) {
	start := p.pos
	for !p.eof() {
		if p.peek() == q {
			s := p.input[start:p.pos]
			p.next()
			return s, nil
		}
		p.next()
	}
	return "", fmt.Errorf("unterminated %q starting at position %d", q, start-1)
}

func (p *filterParser) word() string {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		p.next()
	}
	return p.input[start:p.pos]
}

func (p *filterParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.next()
	}
}

func (p *filterParser) peek() rune {
	if p.eof() {
		return 0
	}
	return rune(p.input[p.pos])
}

func (p *filterParser) next() rune {
	r := p.peek()
	p.pos++
	return r
}

func (p *filterParser) consume(r rune) bool {
	if p.peek() == r {
		p.pos++
		return true
	}
	return false
}

func (p *filterParser) eof() bool {
	return p.pos >= len(p.input)
}

// ParseVersionFilter parses the model version search filter subset: the
// single-clause forms "name = '<v>'" and "run_id = '<v>'". An empty filter
// selects every version.
func ParseVersionFilter(filter string) (field, value string, err error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return "", "", nil
	}
	field, rest, ok := strings.Cut(filter, "=")
	if !ok {
		return "", "", api.NewInvalidParameterError("invalid model version filter %q", filter)
	}
	field = strings.TrimSpace(field)
	if field != "name" && field != "run_id" {
		return "", "", api.NewInvalidParameterError("unsupported model version filter field %q", field)
	}
	value = strings.TrimSpace(rest)
	if len(value) < 2 || (value[0] != '\'' && value[0] != '"') || value[len(value)-1] != value[0] {
		return "", "", api.NewInvalidParameterError("model version filter value must be quoted: %q", filter)
	}
	return field, value[1 : len(value)-1], nil
}
