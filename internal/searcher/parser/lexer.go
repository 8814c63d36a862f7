package parser

import (
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokTerm
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of query"
	case tokTerm:
		return "term"
	case tokAnd:
		return "'&&'"
	case tokOr:
		return "'||'"
	case tokNot:
		return "'!'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits query into tokens. A term is a maximal run of characters other
// than whitespace, parentheses, '!', and the digraphs "&&" and "||"; a lone
// '&' or '|' stays part of the term.
func lex(query string) []token {
	var tokens []token
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case r == '!':
			tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
			i++
		case hasDigraph(query, i, '&'):
			tokens = append(tokens, token{kind: tokAnd, text: "&&", pos: i})
			i += 2
		case hasDigraph(query, i, '|'):
			tokens = append(tokens, token{kind: tokOr, text: "||", pos: i})
			i += 2
		default:
			start := i
			for i < len(query) {
				r, size := utf8.DecodeRuneInString(query[i:])
				if unicode.IsSpace(r) || r == '(' || r == ')' || r == '!' ||
					hasDigraph(query, i, '&') || hasDigraph(query, i, '|') {
					break
				}
				i += size
			}
			tokens = append(tokens, token{kind: tokTerm, text: query[start:i], pos: start})
		}
	}
	return append(tokens, token{kind: tokEOF, pos: len(query)})
}

func hasDigraph(s string, i int, c byte) bool {
	return i+1 < len(s) && s[i] == c && s[i+1] == c
}

// dropLegacyNegations removes every '!' whose next token is a term or '('.
func dropLegacyNegations(tokens []token) []token {
	out := tokens[:0:0]
	for i, tok := range tokens {
		if tok.kind == tokNot && i+1 < len(tokens) {
			next := tokens[i+1].kind
			if next == tokTerm || next == tokLParen {
				continue
			}
		}
		out = append(out, tok)
	}
	return out
}
