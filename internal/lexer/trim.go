package lexer

import (
	"strings"

	"ajj/internal/token"
)

// applyWhitespaceControl implements the `-` whitespace-control marker:
// {%- / {{- trims trailing whitespace off the preceding TEXT token, and
// -%} / -}} trims leading whitespace off the following TEXT token.
func applyWhitespaceControl(tokens []token.Token) {
	for i, tok := range tokens {
		switch tok.Type {
		case token.BLOCK_OPEN, token.VAR_OPEN:
			if tok.TrimLeft && i > 0 {
				trimTrailingWhitespace(&tokens[i-1])
			}
		case token.BLOCK_CLOSE, token.VAR_CLOSE:
			if tok.TrimRight && i+1 < len(tokens) {
				trimLeadingWhitespace(&tokens[i+1])
			}
		}
	}
}

func trimTrailingWhitespace(tok *token.Token) {
	if tok.Type == token.TEXT {
		tok.Lexeme = strings.TrimRight(tok.Lexeme, " \t\r\n")
	}
}

func trimLeadingWhitespace(tok *token.Token) {
	if tok.Type == token.TEXT {
		tok.Lexeme = strings.TrimLeft(tok.Lexeme, " \t\r\n")
	}
}
