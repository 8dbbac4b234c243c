package builtin

import (
	"ajj/internal/gc"
	"ajj/internal/value"
)

func funcRange(scope *gc.Scope, args []value.Value) (value.Value, error)  { return Range(scope, args) }
func funcCycler(scope *gc.Scope, args []value.Value) (value.Value, error) { return Cycler(scope, args) }

// Funcs holds the language's free-standing builtin functions, consulted by
// the VM's CALL resolution as the last fallback after the upvalue chain and
// the compiled function table (§4.6).
var Funcs = map[string]Func{
	"range":  funcRange,
	"cycler": funcCycler,
}

// RegisterFunc adds or overrides a free-standing function entry. Used by
// internal/engine's host registration API (spec §6) to expose Go functions
// to templates under a chosen name.
func RegisterFunc(name string, fn Func) { Funcs[name] = fn }

// Filters holds the registered filters (§4.7), dispatched by the VM's
// OpBcall "filter:"+name.
var Filters = map[string]Func{
	"abs":          filterAbs,
	"attr":         filterAttr,
	"default":      filterDefault,
	"slice":        filterSlice,
	"bslice":       filterBslice,
	"upper":        filterUpper,
	"lower":        filterLower,
	"floor":        filterFloor,
	"ceil":         filterCeil,
	"assert_expr":  filterAssertExpr,
	"typeof":       filterTypeof,
	"shell":        filterShell,
	"lstrip":       filterLstrip,
	"rstrip":       filterRstrip,
}

// RegisterFilter adds or overrides a filter entry. Used by internal/engine
// to fold in filters implemented by packages builtin cannot itself import
// (to_json/to_jsonc live in internal/ajjjson, which depends on builtin for
// list/dict construction and so cannot be a reverse dependency of it).
func RegisterFilter(name string, fn Func) { Filters[name] = fn }

// Tests holds the registered tests (§4.7), dispatched by the VM's
// OpBcall "test:"+name.
var Tests = map[string]Func{
	"true":        testTrue,
	"false":       testFalse,
	"none":        testNone,
	"None":        testNone,
	"undefined":   testNone,
	"defined":     testDefined,
	"divisableby": testDivisableby,
	"even":        testEven,
	"odd":         testOdd,
	"iterable":    testIterable,
	"mapping":     testMapping,
	"number":      testNumber,
	"object":      testObject,
	"sameas":      testSameas,
	"string":      testString,
}

// RegisterTest adds or overrides a test entry (spec §6's host registration
// API: a test has the same signature as a function but is expected to
// return a boolean).
func RegisterTest(name string, fn Func) { Tests[name] = fn }
