package compiler

import (
	"strconv"

	"ajj/internal/bytecode"
	"ajj/internal/token"
	"ajj/internal/value"
)

// compileBody compiles template items (text, {{ }}, {% %} tags) until EOF
// or a BLOCK_OPEN immediately followed by one of the stop keywords, which
// it leaves unconsumed and returns so the caller can dispatch on it.
func (c *Compiler) compileBody(stop ...token.Type) token.Type {
	for {
		tok := c.peek()
		switch tok.Type {
		case token.EOF:
			return token.EOF
		case token.TEXT, token.RAW_TEXT:
			c.advance()
			c.emitPrintLiteral(tok.Lexeme)
		case token.VAR_OPEN:
			c.advance()
			c.compileExpr()
			c.expect(token.VAR_CLOSE, "to close '{{' expression")
			c.emit(bytecode.OpPrint)
		case token.BLOCK_OPEN:
			kw := c.tokAt(1).Type
			if containsType(stop, kw) {
				return kw
			}
			c.advance() // BLOCK_OPEN
			kwTok := c.advance()
			c.compileTag(kwTok)
		default:
			c.fail("unexpected token %s %q in template body", tok.Type, tok.Lexeme)
		}
	}
}

func containsType(set []token.Type, t token.Type) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

func (c *Compiler) emitPrintLiteral(s string) {
	if s == "" {
		return
	}
	c.emitLoadString(s)
	c.emit(bytecode.OpPrint)
}

// expectEndTag expects and consumes "{% kind %}".
func (c *Compiler) expectEndTag(kind token.Type) {
	c.expect(token.BLOCK_OPEN, "to open end tag")
	c.expect(kind, "matching end tag")
	c.expect(token.BLOCK_CLOSE, "to close end tag")
}

func (c *Compiler) compileTag(kwTok token.Token) {
	switch kwTok.Type {
	case token.IF:
		c.compileIf()
	case token.FOR:
		c.compileFor()
	case token.SET:
		c.compileSet()
	case token.BLOCK:
		c.compileBlockDecl()
	case token.MACRO:
		c.compileMacroDecl()
	case token.CALL:
		c.compileCallBlock()
	case token.FILTER:
		c.compileFilterBlock()
	case token.INCLUDE:
		c.compileInclude()
	case token.IMPORT:
		c.compileImport()
	case token.FROM:
		c.compileFromImport()
	case token.EXTENDS:
		c.compileExtends()
	case token.BREAK:
		c.compileBreak()
	case token.CONTINUE:
		c.compileContinue()
	case token.WITH:
		c.compileWith()
	case token.MOVE:
		c.compileMove()
	case token.DO:
		c.compileDo()
	case token.UPVALUE:
		c.compileUpvalueBlock()
	default:
		c.fail("unexpected tag %q", kwTok.Lexeme)
	}
}

// --- with / move / do / upvalue ---

// compileWith implements `{% with [name = expr, ...] %} body {% endwith %}`:
// a fresh lexical scope (GC ENTER) holding the given local definitions,
// torn down (GC EXIT) at {% endwith %}. Unlike set's block form, the body
// prints directly — with introduces scoping, not value capture.
func (c *Compiler) compileWith() {
	c.emit(bytecode.OpEnter)
	savedLocals := len(c.cur.locals)
	savedSlot := c.cur.nextSlot

	if !c.check(token.BLOCK_CLOSE) {
		for {
			name := c.expect(token.IDENT, "name in 'with' header").Lexeme
			c.expect(token.ASSIGN, "after with-variable name")
			c.compileExpr()
			c.emitStoreName(name, true)
			if !c.match(token.COMMA) {
				break
			}
		}
	}
	c.expect(token.BLOCK_CLOSE, "after with header")
	c.compileBody(token.ENDWITH)
	c.expectEndTag(token.ENDWITH)
	c.emit(bytecode.OpExit)

	// Names declared inside `with` go out of scope with it; locals declared
	// afterward in the same function must not reuse shadowed names.
	c.cur.locals = c.cur.locals[:savedLocals]
	_ = savedSlot
}

// compileMove implements `{% move dst = src %}`: lifts the object currently
// bound to src up to the scope level of dst's existing binding (per §4.4,
// "emit an instruction that lifts src's referenced object to dst's scope
// level then rebinds dst to that value"), using the LIFT levels operand as
// "one level" since move always targets the immediately enclosing scope a
// nested `{% with %}`/loop body runs inside — the only place `move` is
// meaningful relative to the statement position it's written at.
func (c *Compiler) compileMove() {
	dst := c.expect(token.IDENT, "destination name after 'move'").Lexeme
	c.expect(token.ASSIGN, "after move destination")
	src := c.expect(token.IDENT, "source name after '='").Lexeme
	c.expect(token.BLOCK_CLOSE, "after move statement")

	slot, ok := c.resolveLocal(src)
	if !ok {
		c.fail("'move' source %q is not a local variable", src)
	}
	c.emit2(bytecode.OpLift, int32(slot), 1)
	c.emit1(bytecode.OpBpush, int32(slot))
	c.emitStoreName(dst, true)
}

// compileDo implements `{% do expr %}`: evaluate for side effects, discard.
func (c *Compiler) compileDo() {
	c.compileExpr()
	c.expect(token.BLOCK_CLOSE, "after do expression")
	c.emit1(bytecode.OpPop, 1)
}

// compileUpvalueBlock implements `{% upvalue name = expr %} body
// {% endupvalue %}`: binds name as an upvalue (visible to anything the body
// calls, unlike a plain local) for the body's duration, then deletes it.
func (c *Compiler) compileUpvalueBlock() {
	name := c.expect(token.IDENT, "name after 'upvalue'").Lexeme
	c.expect(token.ASSIGN, "after upvalue name")
	c.compileExpr()
	c.expect(token.BLOCK_CLOSE, "after upvalue statement")
	c.emit2(bytecode.OpUpvalueSet, c.constStr(name), bytecode.UpvalueOverride)

	c.compileBody(token.ENDUPVALUE)
	c.expectEndTag(token.ENDUPVALUE)
	c.emit1(bytecode.OpUpvalueDel, c.constStr(name))
}

// --- if/elif/else ---

func (c *Compiler) compileIf() {
	c.compileExpr()
	c.expect(token.BLOCK_CLOSE, "after if condition")
	jf := c.emit1(bytecode.OpJlf, -1)

	var endJumps []int
	stop := c.compileBody(token.ELIF, token.ELSE, token.ENDIF)
	for stop == token.ELIF {
		endJumps = append(endJumps, c.emit1(bytecode.OpJmp, -1))
		c.patchJumpHere(jf)
		c.advance() // BLOCK_OPEN
		c.advance() // ELIF
		c.compileExpr()
		c.expect(token.BLOCK_CLOSE, "after elif condition")
		jf = c.emit1(bytecode.OpJlf, -1)
		stop = c.compileBody(token.ELIF, token.ELSE, token.ENDIF)
	}
	if stop == token.ELSE {
		endJumps = append(endJumps, c.emit1(bytecode.OpJmp, -1))
		c.patchJumpHere(jf)
		c.advance() // BLOCK_OPEN
		c.advance() // ELSE
		c.expect(token.BLOCK_CLOSE, "after else")
		c.compileBody(token.ENDIF)
	} else {
		c.patchJumpHere(jf)
	}
	c.expectEndTag(token.ENDIF)
	for _, j := range endJumps {
		c.patchJumpHere(j)
	}
}

// --- for/else, break/continue ---

func (c *Compiler) compileFor() {
	var names []string
	names = append(names, c.expect(token.IDENT, "loop variable").Lexeme)
	for c.match(token.COMMA) {
		names = append(names, c.expect(token.IDENT, "loop variable").Lexeme)
	}
	c.expect(token.IN, "after for loop variables")
	c.compileExpr()

	recursive := false
	if c.match(token.RECURSIVE) {
		recursive = true
	}
	c.expect(token.BLOCK_CLOSE, "after for header")

	if recursive {
		c.compileRecursiveFor(names)
		return
	}
	c.compileInlineFor(names)
}

func (c *Compiler) compileInlineFor(names []string) {
	c.emit(bytecode.OpIterStart)
	c.emit(bytecode.OpIterHas)
	elseJump := c.emit1(bytecode.OpJlf, -1)

	bodyStart := len(c.cur.prog.Code)
	c.cur.breakPatches = append(c.cur.breakPatches, nil)
	c.cur.contPatches = append(c.cur.contPatches, nil)

	c.bindForVars(names)
	c.emit(bytecode.OpEnter)
	stop := c.compileBody(token.ELSE, token.ENDFOR)
	contTarget := len(c.cur.prog.Code)
	c.emit(bytecode.OpExit)
	c.emit(bytecode.OpIterMove)
	c.emit(bytecode.OpIterHas)
	c.emit1(bytecode.OpJlt, int32(bodyStart))
	c.emit1(bytecode.OpPop, 2) // drop exhausted iterator + sequence
	endJump := c.emit1(bytecode.OpJmp, -1)

	c.patchJumpHere(elseJump)
	c.emit1(bytecode.OpPop, 2) // drop iterator + sequence (zero iterations)
	if stop == token.ELSE {
		c.advance()
		c.advance()
		c.expect(token.BLOCK_CLOSE, "after else")
		stop = c.compileBody(token.ENDFOR)
	}
	c.expectEndTag(token.ENDFOR)
	c.patchJumpHere(endJump)

	breaks := c.cur.breakPatches[len(c.cur.breakPatches)-1]
	conts := c.cur.contPatches[len(c.cur.contPatches)-1]
	c.cur.breakPatches = c.cur.breakPatches[:len(c.cur.breakPatches)-1]
	c.cur.contPatches = c.cur.contPatches[:len(c.cur.contPatches)-1]
	for _, j := range breaks {
		c.patchJumpHere(j)
	}
	for _, j := range conts {
		c.cur.prog.PatchOperand(j+1, int32(contTarget))
	}
}

// bindForVars derefs the current iterator position into the declared loop
// variables: one name binds the value, two names bind key and value.
// ITER_DEREF(KEYVAL) pushes key then val (val on top); emitStoreName fully
// consumes its operand (STORE, then a BPUSH/UPVALUE_SET pair that nets to
// zero extra stack depth), so no separate pop is needed after either.
func (c *Compiler) bindForVars(names []string) {
	switch len(names) {
	case 1:
		c.emit1(bytecode.OpIterDeref, bytecode.IterVal)
		c.emitStoreName(names[0], true)
	case 2:
		c.emit1(bytecode.OpIterDeref, bytecode.IterKeyVal)
		c.emitStoreName(names[1], true) // val, on top
		c.emitStoreName(names[0], true) // key
	default:
		c.fail("for loop supports at most two loop variables")
	}
}

// compileRecursiveFor implements `{% for x in seq recursive %}`, per the
// Open Question resolution of treating a recursive loop as sugar for a
// self-referential macro: the body compiles into its own function, and
// `loop(other_seq)` inside it calls that same function again.
func (c *Compiler) compileRecursiveFor(names []string) {
	c.anonCounter++
	name := fmtAnonName("for", c.anonCounter)

	saved := c.cur
	prog := bytecode.NewProgram(name, bytecode.KindMacro)
	c.cur = &funcCtx{prog: prog}
	seqSlot := c.declareLocal("__seq__")
	if err := prog.AddParam(bytecode.Param{Name: "__seq__"}); err != nil {
		c.fail("%v", err)
	}

	// loop = __func__ (so `loop(seq)` inside the body recurses).
	c.emit1(bytecode.OpUpvalueGet, c.constStr("__func__"))
	c.emit2(bytecode.OpUpvalueSet, c.constStr("loop"), bytecode.UpvalueOverride)

	acc := c.declareLocal(anonLocalName(c))
	c.emitLoadString("")
	c.emit1(bytecode.OpStore, int32(acc))

	c.emit1(bytecode.OpBpush, int32(seqSlot))
	c.emit(bytecode.OpIterStart)
	c.emit(bytecode.OpIterHas)
	skip := c.emit1(bytecode.OpJlf, -1)
	bodyStart := len(prog.Code)
	c.bindForVars(names)
	c.emit(bytecode.OpEnter)
	for {
		tok := c.peek()
		if tok.Type == token.EOF {
			c.fail("unterminated block, expected %s", token.ENDFOR)
		}
		if tok.Type == token.BLOCK_OPEN && c.tokAt(1).Type == token.ENDFOR {
			break
		}
		c.compileCapturedItem(acc)
	}
	c.emit(bytecode.OpExit)
	c.emit(bytecode.OpIterMove)
	c.emit(bytecode.OpIterHas)
	c.emit1(bytecode.OpJlt, int32(bodyStart))
	c.patchJumpHere(skip)
	c.emit1(bytecode.OpPop, 2) // drop iterator + sequence, both exhaustion and zero-iteration paths land here
	c.emit1(bytecode.OpBpush, int32(acc))
	c.emit(bytecode.OpRet)
	c.expectEndTag(token.ENDFOR)

	c.tmpl.Macros[name] = prog
	c.cur = saved

	c.emit2(bytecode.OpCall, c.constStr(name), 1)
	c.emit(bytecode.OpPrint)
}

func fmtAnonName(kind string, n int) string {
	const digits = "0123456789"
	buf := []byte(kind)
	buf = append(buf, '_', '_')
	if n == 0 {
		return string(append(buf, '0'))
	}
	var tmp []byte
	for n > 0 {
		tmp = append([]byte{digits[n%10]}, tmp...)
		n /= 10
	}
	return string(append(buf, tmp...))
}

func (c *Compiler) compileBreak() {
	if len(c.cur.breakPatches) == 0 {
		c.fail("'break' used outside a for loop")
	}
	c.expect(token.BLOCK_CLOSE, "after break")
	c.emit(bytecode.OpExit)
	c.emit1(bytecode.OpPop, 2) // drop iterator + sequence before leaving the loop
	j := c.emit1(bytecode.OpJmp, -1)
	top := len(c.cur.breakPatches) - 1
	c.cur.breakPatches[top] = append(c.cur.breakPatches[top], j)
}

func (c *Compiler) compileContinue() {
	if len(c.cur.contPatches) == 0 {
		c.fail("'continue' used outside a for loop")
	}
	c.expect(token.BLOCK_CLOSE, "after continue")
	j := c.emit1(bytecode.OpJmp, -1)
	top := len(c.cur.contPatches) - 1
	c.cur.contPatches[top] = append(c.cur.contPatches[top], j)
}

// --- set ---

func (c *Compiler) compileSet() {
	name := c.expect(token.IDENT, "variable name after 'set'").Lexeme
	if c.match(token.ASSIGN) {
		c.compileExpr()
		c.expect(token.BLOCK_CLOSE, "after set expression")
		c.emitStoreName(name, true)
		return
	}
	// Block form: {% set name %}...body...{% endset %}
	c.expect(token.BLOCK_CLOSE, "after set target")
	c.compileCaptureBody(token.ENDSET)
	c.expectEndTag(token.ENDSET)
	c.emitStoreName(name, true)
}

// compileCapturedItem compiles one body item (a text/raw-text fragment, a
// {{ expr }}, or a {% tag %}), appending any printed fragment into the
// local slot acc instead of the real output sink. Nested control-flow
// tags (if/for/...) still dispatch to their normal compileBody-based
// form and so print directly rather than feeding acc; capturing through
// nested control flow isn't supported.
func (c *Compiler) compileCapturedItem(acc int) {
	tok := c.peek()
	switch tok.Type {
	case token.TEXT, token.RAW_TEXT:
		c.advance()
		c.emit1(bytecode.OpBpush, int32(acc))
		c.emitLoadString(tok.Lexeme)
		c.emit(bytecode.OpCat)
		c.emit1(bytecode.OpStore, int32(acc))
	case token.VAR_OPEN:
		c.advance()
		c.emit1(bytecode.OpBpush, int32(acc))
		c.compileExpr()
		c.expect(token.VAR_CLOSE, "to close '{{' expression")
		c.emit(bytecode.OpCat)
		c.emit1(bytecode.OpStore, int32(acc))
	case token.BLOCK_OPEN:
		c.advance()
		kwTok := c.advance()
		c.compileTag(kwTok)
	default:
		c.fail("unexpected token %s in captured block", tok.Type)
	}
}

// compileCapturedFunctionBody compiles template content up to stop,
// accumulating every printed fragment into a fresh local via CAT, and
// returns the slot holding the final string. Used for the body of a
// function that returns its rendered text as a value (macro, call-block
// caller, recursive for) rather than printing it directly.
func (c *Compiler) compileCapturedFunctionBody(stop token.Type) int {
	acc := c.declareLocal(anonLocalName(c))
	c.emitLoadString("")
	c.emit1(bytecode.OpStore, int32(acc))
	for {
		tok := c.peek()
		if tok.Type == token.EOF {
			c.fail("unterminated block, expected %s", stop)
		}
		if tok.Type == token.BLOCK_OPEN && c.tokAt(1).Type == stop {
			break
		}
		c.compileCapturedItem(acc)
	}
	return acc
}

// compileCaptureBody is compileCapturedFunctionBody for a tag nested
// inside an already-running function ({% set %}/{% filter %} blocks): it
// wraps the capture in its own GC scope and leaves the result on the
// value stack rather than returning it from the function.
func (c *Compiler) compileCaptureBody(stop token.Type) {
	c.emit(bytecode.OpEnter)
	acc := c.compileCapturedFunctionBody(stop)
	c.emit1(bytecode.OpBpush, int32(acc))
	c.emit2(bytecode.OpLift, int32(acc), 1) // lift the accumulated string out of the block's own scope before EXIT frees it
	c.emit(bytecode.OpExit)
}

var anonLocalCounter int

func anonLocalName(c *Compiler) string {
	anonLocalCounter++
	return fmtAnonName("capture", anonLocalCounter)
}

// --- block / macro declarations ---

func (c *Compiler) compileBlockDecl() {
	name := c.expect(token.IDENT, "block name").Lexeme
	c.expect(token.BLOCK_CLOSE, "after block name")

	saved := c.cur
	prog := bytecode.NewProgram(name, bytecode.KindBlock)
	c.cur = &funcCtx{prog: prog, blockName: name}
	// A block's body is captured and returned as a string, the same as a
	// macro, rather than printed from inside the function: that's what
	// lets `{{ super() }}` interpolate the parent block's rendering
	// instead of it streaming straight to output.
	acc := c.compileCapturedFunctionBody(token.ENDBLOCK)
	c.emit1(bytecode.OpBpush, int32(acc))
	c.emit(bytecode.OpRet)
	c.expectEndTag(token.ENDBLOCK)

	c.tmpl.Blocks[name] = prog
	c.cur = saved

	// Inline reference so a template with no ancestors still renders its
	// own blocks: the engine overrides this call when a child template
	// provides its own version for the same block name.
	c.emit2(bytecode.OpCall, c.constStr("__block__:"+name), 0)
	c.emit(bytecode.OpPrint)
}

func (c *Compiler) compileMacroDecl() {
	name := c.expect(token.IDENT, "macro name").Lexeme
	c.expect(token.LPAREN, "after macro name")

	saved := c.cur
	prog := bytecode.NewProgram(name, bytecode.KindMacro)
	c.cur = &funcCtx{prog: prog}

	for !c.check(token.RPAREN) {
		pname := c.expect(token.IDENT, "parameter name").Lexeme
		slot := c.declareLocal(pname)
		_ = slot
		param := bytecode.Param{Name: pname}
		if c.match(token.ASSIGN) {
			param.HasDefault = true
			param.DefaultValue = c.compileConstExpr()
		}
		if err := prog.AddParam(param); err != nil {
			c.fail("%v", err)
		}
		if !c.match(token.COMMA) {
			break
		}
	}
	c.expect(token.RPAREN, "to close macro parameter list")
	c.expect(token.BLOCK_CLOSE, "after macro header")

	acc := c.compileCapturedFunctionBody(token.ENDMACRO)
	c.emit1(bytecode.OpBpush, int32(acc))
	c.emit(bytecode.OpRet)
	c.expectEndTag(token.ENDMACRO)

	c.tmpl.Macros[name] = prog
	c.cur = saved
}

// compileConstExpr parses a restricted constant expression for a default
// parameter value: a literal, evaluated immediately rather than emitted as
// bytecode, so it can be stored directly on Param.DefaultValue (§3
// "ordered parameter list of (name, default-value) pairs"). String
// defaults carry the raw Go string in Ref rather than a *gc.Object, since
// no scope exists at compile time to own one; the VM materializes a const
// string the first time the default is actually used.
func (c *Compiler) compileConstExpr() value.Value {
	tok := c.advance()
	switch tok.Type {
	case token.NUMBER:
		n, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			c.fail("invalid number literal %q", tok.Lexeme)
		}
		return value.Number(n)
	case token.STRING:
		return value.Value{Kind: value.KindString, Ref: tok.Lexeme}
	case token.TRUE:
		return value.Boolean(true)
	case token.FALSE:
		return value.Boolean(false)
	case token.NONE:
		return value.None()
	case token.MINUS:
		inner := c.compileConstExpr()
		if inner.Kind != value.KindNumber {
			c.fail("unary '-' on a non-numeric default value")
		}
		inner.Num = -inner.Num
		return inner
	default:
		c.fail("default parameter values must be constant literals")
		return value.None()
	}
}

// --- call block ---

func (c *Compiler) compileCallBlock() {
	name := c.expect(token.IDENT, "macro name after 'call'").Lexeme
	var argc int32
	if c.match(token.LPAREN) {
		argc = c.compileArgList()
	}
	c.expect(token.BLOCK_CLOSE, "after call header")

	c.anonCounter++
	callerName := fmtAnonName("caller", c.anonCounter)
	saved := c.cur
	prog := bytecode.NewProgram(callerName, bytecode.KindMacro)
	c.cur = &funcCtx{prog: prog}
	acc := c.compileCapturedFunctionBody(token.ENDCALL)
	c.emit1(bytecode.OpBpush, int32(acc))
	c.emit(bytecode.OpRet)
	c.expectEndTag(token.ENDCALL)
	c.tmpl.Macros[callerName] = prog
	c.cur = saved

	// Bind `caller` to the compiled body before invoking the macro, so the
	// macro can invoke it via `{{ caller() }}` (bc.h's CALLER_INDEX slot).
	c.emit1(bytecode.OpUpvalueGet, c.constStr("__func__:"+callerName))
	c.emit2(bytecode.OpUpvalueSet, c.constStr("caller"), bytecode.UpvalueOverride)
	c.emit2(bytecode.OpCall, c.constStr(name), argc)
	c.emit(bytecode.OpPrint)
	c.emit1(bytecode.OpUpvalueDel, c.constStr("caller"))
}

// --- filter block ---

func (c *Compiler) compileFilterBlock() {
	name := c.expect(token.IDENT, "filter name").Lexeme
	// Extra filter args appear in the source before the captured body, but
	// the filter calling convention (matching the `|filter(args)` postfix
	// form) wants the subject pushed first. Stash each arg into a fresh
	// local as it's parsed, then reload them in order once the subject
	// (the captured text) is on the stack.
	var argSlots []int
	if c.match(token.LPAREN) {
		for !c.check(token.RPAREN) {
			c.compileExpr()
			slot := c.declareLocal(anonLocalName(c))
			c.emit1(bytecode.OpStore, int32(slot))
			argSlots = append(argSlots, slot)
			if !c.match(token.COMMA) {
				break
			}
		}
		c.expect(token.RPAREN, "to close filter arguments")
	}
	c.expect(token.BLOCK_CLOSE, "after filter header")
	c.compileCaptureBody(token.ENDFILTER)
	c.expectEndTag(token.ENDFILTER)
	for _, slot := range argSlots {
		c.emit1(bytecode.OpBpush, int32(slot))
	}
	c.emit2(bytecode.OpBcall, c.constStr("filter:"+name), int32(1+len(argSlots)))
	c.emit(bytecode.OpPrint)
}

// --- extends / include / import ---

func (c *Compiler) compileExtends() {
	tok := c.expect(token.STRING, "template name after 'extends'")
	c.expect(token.BLOCK_CLOSE, "after extends")
	c.tmpl.Extends = tok.Lexeme
}

// compileInclude implements `{% include expr [upvalue name=expr, ... |
// json expr] [ignore missing] [with/without context] %} [{% endinclude %}]`.
// The path expression is pushed on the value stack (it need not be a string
// literal); any upvalue/json key-value pairs follow it, each as a pushed
// (key, value) pair, so the VM's INCLUDE handler can pop `count` pairs then
// the path in one pass. `endinclude` only appears when the upvalue/json form
// was used; the bare form is self-closing.
func (c *Compiler) compileInclude() {
	c.compileExpr()
	ignoreMissing := false
	withoutContext := false
	mode := int32(bytecode.IncludeUpvalue)
	var count int32
	sawBody := false

	for {
		switch {
		case c.match(token.IGNORE):
			c.expect(token.MISSING, "after 'ignore'")
			ignoreMissing = true
		case c.match(token.WITHOUT):
			c.expect(token.CONTEXT, "after 'without'")
			withoutContext = true
		case c.match(token.WITH):
			c.expect(token.CONTEXT, "after 'with'")
		case c.match(token.UPVALUE):
			sawBody = true
			mode = bytecode.IncludeUpvalue
			for !c.check(token.BLOCK_CLOSE) {
				name := c.expect(token.IDENT, "name in include upvalue list").Lexeme
				c.expect(token.ASSIGN, "after include upvalue name")
				c.emitLoadString(name)
				c.compileExpr()
				count++
				if !c.match(token.COMMA) {
					break
				}
			}
		case c.match(token.JSON):
			sawBody = true
			mode = bytecode.IncludeJSON
			c.emitLoadString("")
			c.compileExpr()
			count = 1
		default:
			goto done
		}
	}
done:
	c.expect(token.BLOCK_CLOSE, "after include")
	if withoutContext {
		mode = bytecode.IncludeNone
	}
	if ignoreMissing {
		mode |= bytecode.IncludeIgnoreMissing
	}
	if sawBody {
		c.expectEndTag(token.ENDINCLUDE)
	}
	c.emit2(bytecode.OpInclude, mode, count)
}

func (c *Compiler) compileImport() {
	tok := c.expect(token.STRING, "template or data path after 'import'")
	alias := ""
	if c.match(token.AS) {
		alias = c.expect(token.IDENT, "alias after 'as'").Lexeme
	}
	c.expect(token.BLOCK_CLOSE, "after import")
	if alias == "" {
		alias = baseNameNoExt(tok.Lexeme)
	}
	// OpImport's single operand is the path constant; the VM tells a JSON
	// import from a template import by the ".json" suffix at run time.
	c.emit1(bytecode.OpImport, c.constStr(tok.Lexeme))
	c.emit2(bytecode.OpUpvalueSet, c.constStr(alias), bytecode.UpvalueOverride)
}

func (c *Compiler) compileFromImport() {
	tok := c.expect(token.STRING, "template name after 'from'")
	c.expect(token.IMPORT, "after from-target")
	type item struct{ name, alias string }
	var items []item
	for {
		name := c.expect(token.IDENT, "imported name").Lexeme
		alias := name
		if c.match(token.AS) {
			alias = c.expect(token.IDENT, "alias after 'as'").Lexeme
		}
		items = append(items, item{name, alias})
		if !c.match(token.COMMA) {
			break
		}
	}
	for _, wc := range []token.Type{token.WITH, token.WITHOUT} {
		if c.match(wc) {
			c.expect(token.CONTEXT, "after with/without")
		}
	}
	c.expect(token.BLOCK_CLOSE, "after from-import")

	c.emit1(bytecode.OpImport, c.constStr(tok.Lexeme))
	c.emit2(bytecode.OpUpvalueSet, c.constStr("__import__"), bytecode.UpvalueOverride)
	for _, it := range items {
		c.emit1(bytecode.OpUpvalueGet, c.constStr("__import__"))
		c.emitLoadString(it.name)
		c.emit(bytecode.OpAttrGet)
		c.emit2(bytecode.OpUpvalueSet, c.constStr(it.alias), bytecode.UpvalueOverride)
	}
	c.emit1(bytecode.OpUpvalueDel, c.constStr("__import__"))
}

func baseNameNoExt(path string) string {
	start := 0
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			start = i + 1
			break
		}
	}
	name := path[start:]
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

func isJSONPath(path string) bool {
	n := len(path)
	return n > 5 && path[n-5:] == ".json"
}
