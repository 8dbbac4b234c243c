package vm

import (
	"fmt"
	"io"

	"ajj/internal/builtin"
	"ajj/internal/bytecode"
	"ajj/internal/gc"
	"ajj/internal/upvalue"
	"ajj/internal/value"
)

type includePair struct {
	key string
	val value.Value
}

// execInclude implements `{% include %}` (§4.6, §5): the template path to
// render sits below any key/value pairs and is popped last; an optional trailing
// key/value pair either binds explicit upvalues or (key == "", the `json`
// clause's placeholder) names a JSON data file whose top-level keys get
// bound as upvalues before the nested render. The render happens into its
// own buffer, flushed to the current sink only once it completes
// successfully, so a failed include never emits partial output.
func (vm *VM) execInclude(mode, count int) error {
	pairs := make([]includePair, count)
	for i := count - 1; i >= 0; i-- {
		val := vm.pop()
		key := vm.pop()
		pairs[i] = includePair{key: builtin.Display(key), val: val}
	}
	pathVal := vm.pop()
	path, err := asTemplatePath(pathVal)
	if err != nil {
		return vm.runtimeErrorf("%v", err)
	}

	ignoreMissing := mode&bytecode.IncludeIgnoreMissing != 0
	withoutContext := mode&^bytecode.IncludeIgnoreMissing == bytecode.IncludeNone
	isJSON := count == 1 && pairs[0].key == ""

	if vm.includeDepth >= vm.maxIncludeDepth {
		return vm.boundError("include nesting depth exceeded")
	}

	ft, err := vm.loader.Load(path)
	if err != nil {
		if ignoreMissing {
			return nil
		}
		return vm.runtimeErrorf("%v", err)
	}

	savedTable := vm.upvalues
	target := savedTable
	if withoutContext {
		target = upvalue.New(nil)
	}

	var bound []string
	if isJSON {
		jsonPath, err := asTemplatePath(pairs[0].val)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		data, err := vm.loader.LoadJSON(vm.currentScope(), jsonPath)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		if m, keys, ok := builtin.AsDict(data); ok {
			for _, k := range keys {
				target.Set(k, m[k], upvalue.Override)
				bound = append(bound, k)
			}
		}
	} else {
		for _, p := range pairs {
			target.Set(p.key, p.val, upvalue.Override)
			bound = append(bound, p.key)
		}
	}

	vm.upvalues = target
	vm.includeDepth++
	out, renderErr := vm.renderToBuffer(ft)
	vm.includeDepth--

	for _, n := range bound {
		target.Delete(n)
	}
	vm.upvalues = savedTable

	if renderErr != nil {
		return renderErr
	}
	_, err = io.WriteString(vm.out, out)
	return err
}

// execImport implements `{% import %}`/`{% from ... import %}`: it loads
// or compiles the target but never executes its Main. A `.json` path
// binds the parsed data directly; anything else binds a module value
// whose macros resolve through ATTR_GET (§4.6).
func (vm *VM) execImport(path string) error {
	if isJSONPath(path) {
		data, err := vm.loader.LoadJSON(vm.currentScope(), path)
		if err != nil {
			return vm.runtimeErrorf("%v", err)
		}
		return vm.push(data)
	}
	ft, err := vm.loader.Load(path)
	if err != nil {
		return vm.runtimeErrorf("%v", err)
	}
	return vm.push(NewModuleValue(vm.currentScope(), ft))
}

func isJSONPath(path string) bool {
	n := len(path)
	return n > 5 && path[n-5:] == ".json"
}

func asTemplatePath(v value.Value) (string, error) {
	if v.Kind != value.KindString {
		return "", fmt.Errorf("expected a string path, got %s", v.TypeName())
	}
	return gc.StringOf(v), nil
}
