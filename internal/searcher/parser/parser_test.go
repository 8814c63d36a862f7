package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
)

func TestParseCanonicalForm(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"cat", "cat"},
		{"  cat  ", "cat"},
		{"cat && dog", "cat && dog"},
		{"cat&&dog", "cat && dog"},
		{"a || b && c", "a || b && c"},
		{"a && (b || c)", "a && (b || c)"},
		{"(a && b) || c", "a && b || c"},
		{"!cat", "!cat"},
		{"! cat", "!cat"},
		{"!!cat", "!!cat"},
		{"!(a || b)", "!(a || b)"},
		{"((a))", "a"},
		{"at&t || x|y", "at&t || x|y"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())

			again, err := Parse(node.String())
			require.NoError(t, err)
			assert.Equal(t, node, again)
		})
	}
}

func TestParseIsLeftAssociativeWithoutPrecedence(t *testing.T) {
	node, err := Parse("a || b && c")
	require.NoError(t, err)

	want := &Binary{
		Op:    And,
		Left:  &Binary{Op: Or, Left: &Term{Value: "a"}, Right: &Term{Value: "b"}},
		Right: &Term{Value: "c"},
	}
	assert.Equal(t, want, node)

	node, err = Parse("a && b || c")
	require.NoError(t, err)
	assert.Equal(t, &Binary{
		Op:    Or,
		Left:  &Binary{Op: And, Left: &Term{Value: "a"}, Right: &Term{Value: "b"}},
		Right: &Term{Value: "c"},
	}, node)
}

func TestParseNegationBindsTightly(t *testing.T) {
	node, err := Parse("!a && b")
	require.NoError(t, err)
	assert.Equal(t, &Binary{
		Op:    And,
		Left:  &Not{Operand: &Term{Value: "a"}},
		Right: &Term{Value: "b"},
	}, node)
}

func TestParseSyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ""},
		{"blank", "   "},
		{"unclosed paren", "(cat && dog"},
		{"stray close paren", "cat)"},
		{"empty parens", "()"},
		{"missing right operand", "cat &&"},
		{"missing left operand", "|| cat"},
		{"adjacent operands", "cat dog"},
		{"dangling negation", "cat && !"},
		{"double operator", "cat && || dog"},
		{"too deep", strings.Repeat("(", maxDepth+1) + "a" + strings.Repeat(")", maxDepth+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node, err := Parse(tt.query)
			assert.Nil(t, node)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrQuerySyntax))
			var se *SyntaxError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.query, se.Query)
		})
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("cat dog")
	var se *SyntaxError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 4, se.Pos)
	assert.Contains(t, se.Error(), `term "dog"`)
}

func TestParseNormalizesTerms(t *testing.T) {
	norm := tokenizer.New(tokenizer.Options{MinLength: 2})
	node, err := Parse("CAT && (Dog's || x)", WithNormalizer(norm))
	require.NoError(t, err)
	assert.Equal(t, "cat && (dog's || x)", node.String())
	assert.Equal(t, []string{"cat", "dog's", "x"}, Terms(node))
}

func TestParseRejectsTermThatSplits(t *testing.T) {
	norm := tokenizer.New(tokenizer.Options{MinLength: 2})
	for _, q := range []string{"cat,dog", "fish && cat.dog", "!(bird || a/b)"} {
		node, err := Parse(q, WithNormalizer(norm))
		assert.Nil(t, node, q)
		require.Error(t, err, q)
		assert.True(t, errors.Is(err, apperrors.ErrQuerySyntax), q)
	}

	node, err := Parse("cat, && dog", WithNormalizer(norm))
	require.NoError(t, err)
	assert.Equal(t, "cat && dog", node.String())
}

func TestLegacyNegation(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"!cat", "cat"},
		{"! cat", "cat"},
		{"!(a || b)", "a || b"},
		{"a && !b", "a && b"},
		{"!!cat", "!cat"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			node, err := Parse(tt.query, WithLegacyNegation())
			require.NoError(t, err)
			assert.Equal(t, tt.want, node.String())
		})
	}
}

func TestTerms(t *testing.T) {
	node, err := Parse("b && (a || !b) && c")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a", "c"}, Terms(node))
	assert.Nil(t, Terms(nil))
}
