package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/compiler"
)

func TestCompilePlainTextEmitsPrintAndHalt(t *testing.T) {
	tmpl, err := compiler.CompileSource("hello", "t.jinja")
	require.NoError(t, err)
	assert.Equal(t, "t.jinja", tmpl.Name)
	assert.Equal(t, "", tmpl.Extends)
	dis := tmpl.Main.Disassemble()
	assert.Contains(t, dis, "PRINT")
	assert.Contains(t, dis, "HALT")
}

func TestCompileExtendsRecordsParentName(t *testing.T) {
	tmpl, err := compiler.CompileSource(`{% extends "base.html" %}`, "child.html")
	require.NoError(t, err)
	assert.Equal(t, "base.html", tmpl.Extends)
}

func TestCompileBlockIsRegisteredByName(t *testing.T) {
	tmpl, err := compiler.CompileSource("{% block content %}hi{% endblock %}", "t.jinja")
	require.NoError(t, err)
	require.Contains(t, tmpl.Blocks, "content")
	assert.Contains(t, tmpl.Blocks["content"].Disassemble(), "CAT")
}

func TestCompileMacroIsRegisteredByName(t *testing.T) {
	tmpl, err := compiler.CompileSource("{% macro greet(name) %}hi {{ name }}{% endmacro %}", "t.jinja")
	require.NoError(t, err)
	require.Contains(t, tmpl.Macros, "greet")
	require.Len(t, tmpl.Macros["greet"].Params, 1)
	assert.Equal(t, "name", tmpl.Macros["greet"].Params[0].Name)
}

func TestCompileForLoopEmitsJumps(t *testing.T) {
	tmpl, err := compiler.CompileSource("{% for x in items %}{{ x }}{% endfor %}", "t.jinja")
	require.NoError(t, err)
	dis := tmpl.Main.Disassemble()
	assert.Contains(t, dis, "JMP")
}

func TestCompileUnterminatedIfIsError(t *testing.T) {
	_, err := compiler.CompileSource("{% if x %}unterminated", "t.jinja")
	assert.Error(t, err)
}

func TestCompileUndefinedEndtagMismatchIsError(t *testing.T) {
	_, err := compiler.CompileSource("{% for x in items %}{% endif %}", "t.jinja")
	assert.Error(t, err)
}
