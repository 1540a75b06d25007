package transform

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"duck-ingest/internal/domain"
)

// exprNode is one node of a parsed column expression.
type exprNode interface {
	eval(rec domain.Record, source any) (any, error)
}

type columnRef struct{ name string }

func (c columnRef) eval(rec domain.Record, _ any) (any, error) { return rec[c.name], nil }

type literal struct{ value any }

func (l literal) eval(domain.Record, any) (any, error) { return l.value, nil }

type call struct {
	name string
	args []exprNode
	fn   builtin
}

func (c call) eval(rec domain.Record, source any) (any, error) {
	args := make([]any, 0, len(c.args))
	for _, a := range c.args {
		v, err := a.eval(rec, source)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	if len(args) == 0 {
		args = append(args, source)
	}
	v, err := c.fn(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return v, nil
}

// builtin evaluates a function over its already-evaluated arguments. A
// call without arguments receives the source column value.
type builtin func(args []any) (any, error)

type builtinSpec struct {
	fn      builtin
	maxArgs int // -1 for variadic
}

var builtins = map[string]builtinSpec{
	"UPPER":     {stringFn(strings.ToUpper), 1},
	"LOWER":     {stringFn(strings.ToLower), 1},
	"TRIM":      {stringFn(strings.TrimSpace), 1},
	"LTRIM":     {stringFn(func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }), 1},
	"RTRIM":     {stringFn(func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }), 1},
	"COALESCE":  {coalesce, -1},
	"CAST_DATE": {castDate, 2},
	"TO_DATE":   {castDate, 2},
}

func stringFn(f func(string) string) builtin {
	return func(args []any) (any, error) {
		if args[0] == nil {
			return nil, nil
		}
		return f(stringify(args[0])), nil
	}
}

func coalesce(args []any) (any, error) {
	for _, a := range args {
		if a == nil {
			continue
		}
		if s, ok := a.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		return a, nil
	}
	return nil, nil
}

func castDate(args []any) (any, error) {
	v := args[0]
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	layout := ""
	if len(args) > 1 && args[1] != nil {
		layout = stringify(args[1])
	}
	t, err := toTime(v, layout)
	if err != nil {
		return nil, err
	}
	return truncateDay(t), nil
}

// parseExpression parses an expression such as
// COALESCE(TRIM(nickname), UPPER(first_name), 'n/a') into a call tree.
// Unknown functions, bad arity and trailing input are errors.
func parseExpression(src string) (exprNode, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	p := &parser{tokens: toks}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("unexpected %q at end of expression", p.tokens[p.pos].text)
	}
	return node, nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(src string) ([]token, error) {
	var toks []token
	runes := []rune(src)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '(':
			toks = append(toks, token{tokLParen, "("})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")"})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ","})
			i++
		case r == '\'' || r == '"':
			quote := r
			var sb strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == quote {
					if i+1 < len(runes) && runes[i+1] == quote {
						sb.WriteRune(quote)
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteRune(runes[i])
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal")
			}
			toks = append(toks, token{tokString, sb.String()})
		case unicode.IsDigit(r) || ((r == '-' || r == '.') && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			start := i
			i++
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				i++
			}
			toks = append(toks, token{tokNumber, string(runes[start:i])})
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(runes) && (runes[i] == '_' || runes[i] == '.' || unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, string(runes[start:i])})
		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}
	return toks, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) parseExpr() (exprNode, error) {
	tok, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++

	switch tok.kind {
	case tokString:
		return literal{tok.text}, nil
	case tokNumber:
		if n, err := strconv.ParseInt(tok.text, 10, 64); err == nil {
			return literal{n}, nil
		}
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.text)
		}
		return literal{f}, nil
	case tokIdent:
		next, ok := p.peek()
		if !ok || next.kind != tokLParen {
			if strings.EqualFold(tok.text, "NULL") {
				return literal{nil}, nil
			}
			return columnRef{tok.text}, nil
		}
		return p.parseCall(tok.text)
	}
	return nil, fmt.Errorf("unexpected %q", tok.text)
}

func (p *parser) parseCall(name string) (exprNode, error) {
	upper := strings.ToUpper(name)
	spec, ok := builtins[upper]
	if !ok {
		return nil, fmt.Errorf("unknown function %s", name)
	}
	p.pos++ // '('

	var args []exprNode
	if tok, ok := p.peek(); ok && tok.kind == tokRParen {
		p.pos++
	} else {
		for {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			tok, ok := p.peek()
			if !ok {
				return nil, fmt.Errorf("missing ) after %s arguments", upper)
			}
			p.pos++
			if tok.kind == tokRParen {
				break
			}
			if tok.kind != tokComma {
				return nil, fmt.Errorf("unexpected %q in %s arguments", tok.text, upper)
			}
		}
	}
	if spec.maxArgs >= 0 && len(args) > spec.maxArgs {
		return nil, fmt.Errorf("%s takes at most %d arguments, got %d", upper, spec.maxArgs, len(args))
	}
	return call{name: upper, args: args, fn: spec.fn}, nil
}
