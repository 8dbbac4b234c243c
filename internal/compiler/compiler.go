// Package compiler is the single-pass parser/emitter (§4.4): it walks the
// token stream produced by internal/lexer and emits internal/bytecode
// directly, with no separate AST stage, the way original_source/src/parse.c
// folds parsing and bytecode emission into one pass. Structured the way the
// teacher's StmtCompiler emits (emitOp/emitByte helpers stamping DebugInfo,
// a locals slice per function, recursive-descent statement dispatch), but
// generalized to Jinja's grammar: tags, expressions, blocks, macros,
// extends/include/import.
package compiler

import (
	"ajj/internal/ajjerr"
	"ajj/internal/bytecode"
	"ajj/internal/lexer"
	"ajj/internal/token"
)

// Template is the result of compiling one source file: its main body plus
// the named blocks and macros declared in it. A template that extends
// another carries the parent's name; resolving and chaining the extends
// graph is the engine's job, not the compiler's.
type Template struct {
	Name    string
	Extends string // "" if this template has no {% extends %}

	Main   *bytecode.Program
	Blocks map[string]*bytecode.Program
	Macros map[string]*bytecode.Program
}

// MaxExtendsDepth bounds how deep an extends chain may go (§5). The
// compiler only records Template.Extends; the engine enforces this bound,
// and rejects a template that names itself as an ancestor, when it walks
// the chain.
const MaxExtendsDepth = 8

type localVar struct {
	name string
	slot int
}

// funcCtx is the compiler's state for one function (Main, a block, or a
// macro) being emitted into, mirroring the teacher's StmtCompiler/parent
// chain shape but flattened: functions in this language don't nest, so
// there is exactly one active funcCtx at a time, saved and restored by the
// compiler around block/macro declarations.
type funcCtx struct {
	prog      *bytecode.Program
	locals    []localVar
	nextSlot  int
	loopDepth int
	// breakPatches/contPatches hold, per enclosing `for`, the list of
	// jump instructions to back-patch once the loop's end is known.
	breakPatches [][]int
	contPatches  [][]int
	// blockName is non-empty while compiling a block body, used to
	// resolve `{{ super() }}`.
	blockName string
}

// Compiler turns one template's token stream into a Template.
type Compiler struct {
	toks []token.Token
	pos  int
	file string
	src  string

	cur  *funcCtx
	tmpl *Template

	anonCounter int
}

// CompileSource tokenizes and compiles a template's source text.
func CompileSource(source, file string) (*Template, error) {
	toks, err := lexer.NewScanner(source, file).ScanTokens()
	if err != nil {
		return nil, err
	}
	return CompileTokens(toks, source, file)
}

// CompileTokens compiles an already-tokenized template. src is kept only
// for error snippets.
func CompileTokens(toks []token.Token, src, file string) (tmpl *Template, err error) {
	c := &Compiler{toks: toks, file: file, src: src}
	c.tmpl = &Template{Name: file, Blocks: map[string]*bytecode.Program{}, Macros: map[string]*bytecode.Program{}}
	c.cur = &funcCtx{prog: bytecode.NewProgram("main", bytecode.KindMain)}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*ajjerr.Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	c.compileBody()
	c.emit(bytecode.OpHalt)
	c.tmpl.Main = c.cur.prog
	return c.tmpl, nil
}

// --- token cursor helpers ---

func (c *Compiler) peek() token.Token  { return c.toks[c.pos] }
func (c *Compiler) tokAt(n int) token.Token {
	if c.pos+n >= len(c.toks) {
		return c.toks[len(c.toks)-1]
	}
	return c.toks[c.pos+n]
}
func (c *Compiler) advance() token.Token {
	t := c.toks[c.pos]
	if c.pos < len(c.toks)-1 {
		c.pos++
	}
	return t
}
func (c *Compiler) check(t token.Type) bool { return c.peek().Type == t }
func (c *Compiler) match(t token.Type) bool {
	if c.check(t) {
		c.advance()
		return true
	}
	return false
}
func (c *Compiler) expect(t token.Type, context string) token.Token {
	if !c.check(t) {
		c.fail("expected %s %s, found %s %q", t, context, c.peek().Type, c.peek().Lexeme)
	}
	return c.advance()
}

func (c *Compiler) fail(format string, args ...interface{}) {
	tok := c.peek()
	loc := ajjerr.Location{File: c.file, Line: tok.Line, Column: tok.Column}
	panic(ajjerr.New(ajjerr.Compile, loc, format, args...).WithSource(c.src))
}

func (c *Compiler) dbg() bytecode.DebugInfo {
	tok := c.peek()
	return bytecode.DebugInfo{Line: tok.Line, Column: tok.Column, File: c.file, Function: c.cur.prog.Name}
}

func (c *Compiler) dbgAt(tok token.Token) bytecode.DebugInfo {
	return bytecode.DebugInfo{Line: tok.Line, Column: tok.Column, File: c.file, Function: c.cur.prog.Name}
}

// --- emission helpers ---

func (c *Compiler) emit(op bytecode.OpCode) int { return c.cur.prog.Emit(op, c.dbg()) }
func (c *Compiler) emit1(op bytecode.OpCode, a int32) int {
	return c.cur.prog.Emit1(op, a, c.dbg())
}
func (c *Compiler) emit2(op bytecode.OpCode, a, b int32) int {
	return c.cur.prog.Emit2(op, a, b, c.dbg())
}
func (c *Compiler) patchJumpHere(pos int) {
	c.cur.prog.PatchOperand(pos+1, int32(len(c.cur.prog.Code)))
}
func (c *Compiler) constStr(s string) int32 {
	i, err := c.cur.prog.AddConstString(s)
	if err != nil {
		c.fail("%v", err)
	}
	return int32(i)
}
func (c *Compiler) constNum(n float64) int32 {
	i, err := c.cur.prog.AddConstNumber(n)
	if err != nil {
		c.fail("%v", err)
	}
	return int32(i)
}

// emitLoadString pushes a string constant by value: LIMM-sized pointer isn't
// enough for arbitrary text, so strings always go through LSTR.
func (c *Compiler) emitLoadString(s string) { c.emit1(bytecode.OpLstr, c.constStr(s)) }

// --- locals ---

func (c *Compiler) declareLocal(name string) int {
	slot := c.cur.nextSlot
	c.cur.nextSlot++
	c.cur.locals = append(c.cur.locals, localVar{name: name, slot: slot})
	if c.cur.nextSlot > c.cur.prog.NumLocals {
		c.cur.prog.NumLocals = c.cur.nextSlot
	}
	return slot
}

func (c *Compiler) resolveLocal(name string) (int, bool) {
	for i := len(c.cur.locals) - 1; i >= 0; i-- {
		if c.cur.locals[i].name == name {
			return c.cur.locals[i].slot, true
		}
	}
	return 0, false
}

// emitLoadName pushes the value of a variable reference: a local slot if
// declared in the current function, otherwise a chained upvalue lookup
// (covers globals, template-level `set` variables seen from inside a
// block, and caller-supplied macro context).
func (c *Compiler) emitLoadName(name string) {
	if slot, ok := c.resolveLocal(name); ok {
		c.emit1(bytecode.OpBpush, int32(slot))
		return
	}
	c.emit1(bytecode.OpUpvalueGet, c.constStr(name))
}

// emitStoreName stores the top of stack into name: a local slot if already
// declared (or newly declared on first assignment within this function),
// and also mirrored into the upvalue chain with Override semantics so
// nested block/macro calls can see it (bc.h's UPVALUE_OVERRIDE). STORE and
// UPVALUE_SET each consume one copy, so the value is pushed again from its
// slot after the STORE.
func (c *Compiler) emitStoreName(name string, declareIfNew bool) {
	slot, ok := c.resolveLocal(name)
	if !ok {
		if !declareIfNew {
			c.fail("assignment to undeclared name %q", name)
		}
		slot = c.declareLocal(name)
	}
	c.emit1(bytecode.OpStore, int32(slot))
	c.emit1(bytecode.OpBpush, int32(slot))
	c.emit2(bytecode.OpUpvalueSet, c.constStr(name), bytecode.UpvalueOverride)
}
