// Package parser turns boolean query strings into expression trees.
//
// Grammar, whitespace-insignificant:
//
//	expr  := unary { ("&&" | "||") unary }
//	unary := "!" unary | "(" expr ")" | term
//
// "&&" and "||" share one precedence level and associate left to right, so
// "a || b && c" parses as "(a || b) && c". Parentheses are the only way to
// regroup.
package parser

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
)

// maxDepth bounds parenthesis and negation nesting.
const maxDepth = 512

// TermNormalizer canonicalizes a query term the way index terms were
// canonicalized at build time.
type TermNormalizer interface {
	NormalizeTerm(token string) (term string, ok bool)
}

type Option func(*options)

type options struct {
	normalizer     TermNormalizer
	legacyNegation bool
}

func WithNormalizer(n TermNormalizer) Option {
	return func(o *options) { o.normalizer = n }
}

// WithLegacyNegation ignores every '!' that directly precedes a term or '(',
// matching the evaluator older indexes were queried with. "!cat" then means
// "cat".
func WithLegacyNegation() Option {
	return func(o *options) { o.legacyNegation = true }
}

// SyntaxError describes a malformed query. It matches ErrQuerySyntax under
// errors.Is.
type SyntaxError struct {
	Query string
	Pos   int
	Msg   string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s at offset %d in %q: %s", apperrors.ErrQuerySyntax, e.Pos, e.Query, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return apperrors.ErrQuerySyntax
}

type parser struct {
	query  string
	tokens []token
	pos    int
	depth  int
	opts   options
}

// Parse builds the expression tree for query.
func Parse(query string, opts ...Option) (Node, error) {
	p := &parser{query: query}
	for _, opt := range opts {
		opt(&p.opts)
	}
	p.tokens = lex(query)
	if p.opts.legacyNegation {
		p.tokens = dropLegacyNegations(p.tokens)
	}

	if p.peek().kind == tokEOF {
		return nil, p.errorf(p.peek(), "empty expression")
	}
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		if tok.kind == tokRParen {
			return nil, p.errorf(tok, "unbalanced ')'")
		}
		return nil, p.errorf(tok, "expected operator, found %s", describe(tok))
	}
	return node, nil
}

func (p *parser) parseExpr() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op Op
		switch p.peek().kind {
		case tokAnd:
			op = And
		case tokOr:
			op = Or
		default:
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNot:
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	case tokLParen:
		if err := p.enter(tok); err != nil {
			return nil, err
		}
		defer p.leave()
		if p.peek().kind == tokRParen {
			return nil, p.errorf(p.peek(), "empty parentheses")
		}
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, p.errorf(closing, "expected ')', found %s", describe(closing))
		}
		return inner, nil
	case tokTerm:
		value, ok := p.normalize(tok.text)
		if !ok {
			return nil, p.errorf(tok, "term %q splits into several terms; join them with '&&' or '||'", tok.text)
		}
		return &Term{Value: value}, nil
	default:
		return nil, p.errorf(tok, "expected term, '!' or '(', found %s", describe(tok))
	}
}

func (p *parser) normalize(text string) (string, bool) {
	if p.opts.normalizer == nil {
		return text, true
	}
	return p.opts.normalizer.NormalizeTerm(text)
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) enter(tok token) error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf(tok, "nesting deeper than %d", maxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) errorf(tok token, format string, args ...any) *SyntaxError {
	return &SyntaxError{Query: p.query, Pos: tok.pos, Msg: fmt.Sprintf(format, args...)}
}

func describe(tok token) string {
	if tok.kind == tokTerm {
		return fmt.Sprintf("term %q", tok.text)
	}
	return tok.kind.String()
}
