package wheelresolve

import (
	"fmt"
	"slices"
	"strings"
	"unicode"
)

var markerVariables = []string{
	"extra",
	"implementation_name",
	"os_name",
	"platform_machine",
	"platform_system",
	"python_full_version",
	"python_version",
	"sys_platform",
}

// A Marker is a parsed [environment marker] such as `python_version >= "3.8" and extra == "test"`.
// It decides whether a requirement applies to the target environment.
//
// [environment marker]: https://peps.python.org/pep-0508/#environment-markers
type Marker struct {
	text string
	root markerExpr
}

type markerExpr interface {
	eval(env map[string]string) bool
}

type markerBool struct {
	and  bool
	l, r markerExpr
}

func (b *markerBool) eval(env map[string]string) bool {
	if b.and {
		return b.l.eval(env) && b.r.eval(env)
	}
	return b.l.eval(env) || b.r.eval(env)
}

type markerValue struct {
	variable string
	literal  string
}

func (v markerValue) resolve(env map[string]string) string {
	if v.variable != "" {
		return env[v.variable]
	}
	return v.literal
}

type markerCmp struct {
	lhs, rhs markerValue
	op       string
}

func (c *markerCmp) eval(env map[string]string) bool {
	l, r := c.lhs.resolve(env), c.rhs.resolve(env)
	switch c.op {
	case "in":
		return strings.Contains(r, l)
	case "not in":
		return !strings.Contains(r, l)
	}
	if c.lhs.variable == "extra" || c.rhs.variable == "extra" {
		l, r = string(CanonicalizeName(l)), string(CanonicalizeName(r))
	} else if v, err := ParseVersion(l); err == nil {
		if spec, err := ParseSpecifier(c.op + r); err == nil {
			return spec.Contains(v, true)
		}
	}
	cmp := strings.Compare(l, r)
	switch c.op {
	case "==", "===":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	default:
		return false
	}
}

// ParseMarker parses an environment marker expression.
func ParseMarker(s string) (*Marker, error) {
	toks, err := tokenizeMarker(s)
	if err != nil {
		return nil, err
	}
	p := &markerParser{toks: toks}
	root, err := p.or()
	if err != nil {
		return nil, fmt.Errorf("invalid marker %q: %w", s, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("invalid marker %q: unexpected %q", s, p.toks[p.pos].text)
	}
	return &Marker{text: strings.TrimSpace(s), root: root}, nil
}

// Evaluate reports whether the marker holds in the given environment.  Missing variables evaluate
// to the empty string.
func (m *Marker) Evaluate(env map[string]string) bool {
	return m.root.eval(env)
}

func (m *Marker) String() string {
	return m.text
}

type markerTokKind int

const (
	tokWord markerTokKind = iota
	tokString
	tokOp
	tokLParen
	tokRParen
)

type markerTok struct {
	kind markerTokKind
	text string
}

func tokenizeMarker(s string) ([]markerTok, error) {
	var toks []markerTok
	for i := 0; i < len(s); {
		ch := rune(s[i])
		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			toks = append(toks, markerTok{tokLParen, "("})
			i++
		case ch == ')':
			toks = append(toks, markerTok{tokRParen, ")"})
			i++
		case ch == '"' || ch == '\'':
			end := strings.IndexRune(s[i+1:], ch)
			if end < 0 {
				return nil, fmt.Errorf("unterminated string in marker %q", s)
			}
			toks = append(toks, markerTok{tokString, s[i+1 : i+1+end]})
			i += end + 2
		case strings.ContainsRune("=!<>~", ch):
			j := i + 1
			for j < len(s) && strings.ContainsRune("=<>~", rune(s[j])) {
				j++
			}
			op := s[i:j]
			if !slices.Contains([]string{"===", "==", "!=", "<=", ">=", "~=", "<", ">"}, op) {
				return nil, fmt.Errorf("invalid operator %q in marker %q", op, s)
			}
			toks = append(toks, markerTok{tokOp, op})
			i = j
		case ch == '_' || unicode.IsLetter(ch):
			j := i
			for j < len(s) && (s[j] == '_' || s[j] == '.' || unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j]))) {
				j++
			}
			toks = append(toks, markerTok{tokWord, s[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in marker %q", ch, s)
		}
	}
	return toks, nil
}

type markerParser struct {
	toks []markerTok
	pos  int
}

func (p *markerParser) peekWord(w string) bool {
	return p.pos < len(p.toks) && p.toks[p.pos].kind == tokWord && p.toks[p.pos].text == w
}

func (p *markerParser) or() (markerExpr, error) {
	l, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.peekWord("or") {
		p.pos++
		r, err := p.and()
		if err != nil {
			return nil, err
		}
		l = &markerBool{and: false, l: l, r: r}
	}
	return l, nil
}

func (p *markerParser) and() (markerExpr, error) {
	l, err := p.atom()
	if err != nil {
		return nil, err
	}
	for p.peekWord("and") {
		p.pos++
		r, err := p.atom()
		if err != nil {
			return nil, err
		}
		l = &markerBool{and: true, l: l, r: r}
	}
	return l, nil
}

func (p *markerParser) atom() (markerExpr, error) {
	if p.pos >= len(p.toks) {
		return nil, fmt.Errorf("unexpected end of marker")
	}
	if p.toks[p.pos].kind == tokLParen {
		p.pos++
		e, err := p.or()
		if err != nil {
			return nil, err
		}
		if p.pos >= len(p.toks) || p.toks[p.pos].kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return e, nil
	}
	lhs, err := p.value()
	if err != nil {
		return nil, err
	}
	op, err := p.op()
	if err != nil {
		return nil, err
	}
	rhs, err := p.value()
	if err != nil {
		return nil, err
	}
	return &markerCmp{lhs: lhs, op: op, rhs: rhs}, nil
}

func (p *markerParser) value() (markerValue, error) {
	if p.pos >= len(p.toks) {
		return markerValue{}, fmt.Errorf("unexpected end of marker")
	}
	t := p.toks[p.pos]
	p.pos++
	switch t.kind {
	case tokString:
		return markerValue{literal: t.text}, nil
	case tokWord:
		if !slices.Contains(markerVariables, t.text) {
			return markerValue{}, fmt.Errorf("unknown marker variable %q", t.text)
		}
		return markerValue{variable: t.text}, nil
	default:
		return markerValue{}, fmt.Errorf("expected a variable or string, got %q", t.text)
	}
}

func (p *markerParser) op() (string, error) {
	if p.pos >= len(p.toks) {
		return "", fmt.Errorf("unexpected end of marker")
	}
	t := p.toks[p.pos]
	p.pos++
	switch {
	case t.kind == tokOp:
		return t.text, nil
	case t.kind == tokWord && t.text == "in":
		return "in", nil
	case t.kind == tokWord && t.text == "not" && p.peekWord("in"):
		p.pos++
		return "not in", nil
	default:
		return "", fmt.Errorf("expected an operator, got %q", t.text)
	}
}
