package compiler

import (
	"strconv"

	"ajj/internal/bytecode"
	"ajj/internal/token"
)

// compileExpr parses and emits one expression, leaving its value on the
// VM's value stack. Precedence, loosest to tightest: or, and, not,
// comparison/is-test, concat (~), additive, multiplicative, unary, power,
// postfix (. [] () |), primary.
func (c *Compiler) compileExpr() {
	c.compileOr()
}

func (c *Compiler) compileOr() {
	c.compileAnd()
	for c.match(token.OR) {
		c.compileAnd()
		c.emit(bytecode.OpOr)
	}
}

func (c *Compiler) compileAnd() {
	c.compileNot()
	for c.match(token.AND) {
		c.compileNot()
		c.emit(bytecode.OpAnd)
	}
}

func (c *Compiler) compileNot() {
	if c.match(token.NOT) {
		c.compileNot()
		c.emit(bytecode.OpNot)
		return
	}
	c.compileComparison()
}

func (c *Compiler) compileComparison() {
	c.compileConcat()
	for {
		switch c.peek().Type {
		case token.EQ:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpEq)
		case token.NE:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpNe)
		case token.LT:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpLt)
		case token.LE:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpLe)
		case token.GT:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpGt)
		case token.GE:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpGe)
		case token.IN:
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpIn)
		case token.NOT:
			if c.tokAt(1).Type != token.IN {
				return
			}
			c.advance()
			c.advance()
			c.compileConcat()
			c.emit(bytecode.OpNin)
		case token.IS:
			c.advance()
			c.compileIsTest()
		default:
			return
		}
	}
}

// compileIsTest handles `x is [not] testname[(args)]`, compiling to a
// BCALL of "test:<name>" with the subject already on the stack as arg 0.
func (c *Compiler) compileIsTest() {
	negate := c.match(token.NOT)
	name := c.expect(token.IDENT, "test name after 'is'").Lexeme
	argc := int32(1)
	if c.match(token.LPAREN) {
		for !c.check(token.RPAREN) {
			c.compileExpr()
			argc++
			if !c.match(token.COMMA) {
				break
			}
		}
		c.expect(token.RPAREN, "to close test arguments")
	}
	c.emit2(bytecode.OpBcall, c.constStr("test:"+name), argc)
	if negate {
		c.emit(bytecode.OpNot)
	}
}

func (c *Compiler) compileConcat() {
	c.compileAdditive()
	for c.match(token.TILDE) {
		c.compileAdditive()
		c.emit(bytecode.OpCat)
	}
}

func (c *Compiler) compileAdditive() {
	c.compileMultiplicative()
	for {
		switch c.peek().Type {
		case token.PLUS:
			c.advance()
			c.compileMultiplicative()
			c.emit(bytecode.OpAdd)
		case token.MINUS:
			c.advance()
			c.compileMultiplicative()
			c.emit(bytecode.OpSub)
		default:
			return
		}
	}
}

func (c *Compiler) compileMultiplicative() {
	c.compileUnary()
	for {
		switch c.peek().Type {
		case token.STAR:
			c.advance()
			c.compileUnary()
			c.emit(bytecode.OpMul)
		case token.SLASH:
			c.advance()
			c.compileUnary()
			c.emit(bytecode.OpDiv)
		case token.DSLASH:
			c.advance()
			c.compileUnary()
			c.emit(bytecode.OpDivtruct)
		case token.PERCENT:
			c.advance()
			c.compileUnary()
			c.emit(bytecode.OpMod)
		default:
			return
		}
	}
}

func (c *Compiler) compileUnary() {
	if c.match(token.MINUS) {
		c.compileUnary()
		c.emit(bytecode.OpNeg)
		return
	}
	if c.match(token.PLUS) {
		c.compileUnary()
		return
	}
	c.compilePower()
}

func (c *Compiler) compilePower() {
	c.compilePostfix()
	if c.match(token.DSTAR) {
		c.compileUnary() // right-associative: 2 ** -2 parses as 2 ** (-2)
		c.emit(bytecode.OpPow)
	}
}

func (c *Compiler) compilePostfix() {
	c.compilePrimary()
	for {
		switch c.peek().Type {
		case token.DOT:
			c.advance()
			name := c.expect(token.IDENT, "attribute name after '.'").Lexeme
			if c.match(token.LPAREN) {
				argc := c.compileArgList()
				c.emit2(bytecode.OpAttrCall, c.constStr(name), argc)
			} else {
				c.emitLoadString(name)
				c.emit(bytecode.OpAttrGet)
			}
		case token.LBRACKET:
			c.advance()
			c.compileExpr()
			c.expect(token.RBRACKET, "to close index expression")
			c.emit(bytecode.OpAttrGet)
		case token.PIPE:
			c.advance()
			name := c.expect(token.IDENT, "filter name after '|'").Lexeme
			argc := int32(1)
			if c.match(token.LPAREN) {
				argc += c.compileArgList()
			}
			c.emit2(bytecode.OpBcall, c.constStr("filter:"+name), argc)
		default:
			return
		}
	}
}

// compileArgList parses a parenthesized, already-opened argument list
// (LPAREN already consumed) and returns the number of arguments emitted.
func (c *Compiler) compileArgList() int32 {
	var argc int32
	for !c.check(token.RPAREN) {
		c.compileExpr()
		argc++
		if !c.match(token.COMMA) {
			break
		}
	}
	c.expect(token.RPAREN, "to close argument list")
	return argc
}

func (c *Compiler) compilePrimary() {
	tok := c.peek()
	switch tok.Type {
	case token.NUMBER:
		c.advance()
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			c.fail("invalid number literal %q", tok.Lexeme)
		}
		if n == float64(int32(n)) {
			c.emit1(bytecode.OpLimm, int32(n))
		} else {
			c.emit1(bytecode.OpLnum, c.constNum(n))
		}
	case token.STRING:
		c.advance()
		c.emitLoadString(tok.Lexeme)
	case token.TRUE:
		c.advance()
		c.emit(bytecode.OpLtrue)
	case token.FALSE:
		c.advance()
		c.emit(bytecode.OpLfalse)
	case token.NONE:
		c.advance()
		c.emit(bytecode.OpLnone)
	case token.SUPER:
		c.advance()
		c.expect(token.LPAREN, "after 'super'")
		c.expect(token.RPAREN, "to close 'super()'")
		if c.cur.blockName == "" {
			c.fail("'super()' used outside a block")
		}
		c.emit2(bytecode.OpCall, c.constStr("__super__:"+c.cur.blockName), 0)
	case token.IDENT:
		c.advance()
		if c.match(token.LPAREN) {
			argc := c.compileArgList()
			c.emit2(bytecode.OpCall, c.constStr(tok.Lexeme), argc)
		} else {
			c.emitLoadName(tok.Lexeme)
		}
	case token.LPAREN:
		c.advance()
		c.compileParenOrList()
	case token.LBRACKET:
		c.advance()
		c.compileListLiteral()
	case token.LBRACE:
		c.advance()
		c.compileDictLiteral()
	case token.MINUS, token.PLUS:
		c.compileUnary()
	default:
		c.fail("unexpected token %s %q in expression", tok.Type, tok.Lexeme)
	}
}

// compileParenOrList handles the Open Question on tuples (§9): there is no
// tuple type, so a parenthesized comma list compiles as a list literal; a
// single expression with no trailing comma is just grouping.
func (c *Compiler) compileParenOrList() {
	if c.match(token.RPAREN) {
		c.emit1(bytecode.OpLlist, 0)
		return
	}
	count := int32(0)
	c.compileExpr()
	count++
	sawComma := false
	for c.match(token.COMMA) {
		sawComma = true
		if c.check(token.RPAREN) {
			break
		}
		c.compileExpr()
		count++
	}
	c.expect(token.RPAREN, "to close parenthesized expression")
	if sawComma {
		c.emit1(bytecode.OpLlist, count)
	}
}

func (c *Compiler) compileListLiteral() {
	count := int32(0)
	for !c.check(token.RBRACKET) {
		c.compileExpr()
		count++
		if !c.match(token.COMMA) {
			break
		}
	}
	c.expect(token.RBRACKET, "to close list literal")
	c.emit1(bytecode.OpLlist, count)
}

func (c *Compiler) compileDictLiteral() {
	count := int32(0)
	for !c.check(token.RBRACE) {
		if c.check(token.STRING) || c.check(token.IDENT) {
			tok := c.advance()
			c.emitLoadString(tok.Lexeme)
		} else {
			c.compileExpr()
		}
		c.expect(token.COLON, "between dict key and value")
		c.compileExpr()
		count++
		if !c.match(token.COMMA) {
			break
		}
	}
	c.expect(token.RBRACE, "to close dict literal")
	c.emit1(bytecode.OpLdict, count)
}
