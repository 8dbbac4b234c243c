package lexer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/lexer"
	"ajj/internal/token"
)

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func scan(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := lexer.NewScanner(src, "t.jinja").ScanTokens()
	require.NoError(t, err)
	return toks
}

func TestScanPlainText(t *testing.T) {
	toks := scan(t, "hello world")
	assert.Equal(t, []token.Type{token.TEXT, token.EOF}, types(toks))
	assert.Equal(t, "hello world", toks[0].Lexeme)
}

func TestScanVariableExpression(t *testing.T) {
	toks := scan(t, "A{{ name }}B")
	assert.Equal(t, []token.Type{
		token.TEXT, token.VAR_OPEN, token.IDENT, token.VAR_CLOSE, token.TEXT, token.EOF,
	}, types(toks))
}

func TestScanBlockTag(t *testing.T) {
	toks := scan(t, "{% if x %}y{% endif %}")
	assert.Equal(t, []token.Type{
		token.BLOCK_OPEN, token.IF, token.IDENT, token.BLOCK_CLOSE,
		token.TEXT,
		token.BLOCK_OPEN, token.ENDIF, token.BLOCK_CLOSE,
		token.EOF,
	}, types(toks))
}

func TestScanStringAndNumberLiterals(t *testing.T) {
	toks := scan(t, `{{ "hi" }}{{ 3.5 }}`)
	assert.Equal(t, []token.Type{
		token.VAR_OPEN, token.STRING, token.VAR_CLOSE,
		token.VAR_OPEN, token.NUMBER, token.VAR_CLOSE,
		token.EOF,
	}, types(toks))
	assert.Equal(t, "hi", toks[1].Lexeme)
}

func TestScanCommentIsDropped(t *testing.T) {
	toks := scan(t, "A{# a comment #}B")
	assert.Equal(t, []token.Type{token.TEXT, token.TEXT, token.EOF}, types(toks))
}

func TestScanTrimMarkersStripWhitespace(t *testing.T) {
	toks := scan(t, "A  {%- if x %}{{ x }}{% endif -%}  B")
	require.True(t, toks[0].Type == token.TEXT)
	assert.Equal(t, "A", toks[0].Lexeme)
}

func TestScanRawBlockPassesThroughVerbatim(t *testing.T) {
	toks := scan(t, "{% raw %}{{ not_an_expr }}{% endraw %}")
	assert.Equal(t, []token.Type{
		token.BLOCK_OPEN, token.RAW, token.BLOCK_CLOSE,
		token.RAW_TEXT,
		token.BLOCK_OPEN, token.ENDRAW, token.BLOCK_CLOSE,
		token.EOF,
	}, types(toks))
	assert.Equal(t, "{{ not_an_expr }}", toks[3].Lexeme)
}

func TestScanUnterminatedTagIsError(t *testing.T) {
	_, err := lexer.NewScanner("{{ x", "t.jinja").ScanTokens()
	assert.Error(t, err)
}

func TestScanUnterminatedCommentIsError(t *testing.T) {
	_, err := lexer.NewScanner("{# no end", "t.jinja").ScanTokens()
	assert.Error(t, err)
}
