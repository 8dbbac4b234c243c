package engine

import (
	"ajj/internal/compiler"
	"ajj/internal/gc"
	"ajj/internal/value"
	"ajj/internal/vm"
)

// RenderOption configures a single render call (§6's "per-template
// upvalue registration... scoped to a single render").
type RenderOption func(*renderConfig)

type renderConfig struct {
	upvalues map[string]value.Value
}

// WithUpvalue binds name to v for the duration of one render only,
// visible to every template/block/macro that render reaches.
func WithUpvalue(name string, v value.Value) RenderOption {
	return func(c *renderConfig) {
		if c.upvalues == nil {
			c.upvalues = map[string]value.Value{}
		}
		c.upvalues[name] = v
	}
}

func applyRenderOptions(opts []RenderOption) *renderConfig {
	c := &renderConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RenderFile loads path via the VFS (compiling on a cache miss or stale
// mtime), executes its Main, and writes the result into io (§6).
func (e *Engine) RenderFile(io IOSink, path string, opts ...RenderOption) error {
	ft, err := e.Load(path)
	if err != nil {
		return e.setLastError(err)
	}
	return e.render(io, ft, opts)
}

// RenderData compiles source inline under logicalName (no VFS lookup for
// the template itself, though its extends/include/import targets still
// resolve through the VFS) and renders it the same way RenderFile does.
func (e *Engine) RenderData(io IOSink, source, logicalName string, opts ...RenderOption) error {
	tmpl, err := compiler.CompileSource(source, logicalName)
	if err != nil {
		return e.setLastError(err)
	}
	if err := optimizeTemplate(tmpl); err != nil {
		return e.setLastError(err)
	}

	e.cacheMu.Lock()
	e.rawCache[logicalName] = &rawEntry{tmpl: tmpl}
	e.cacheMu.Unlock()

	ft, err := e.resolveChain(logicalName, tmpl)
	if err != nil {
		return e.setLastError(err)
	}

	e.cacheMu.Lock()
	e.ftCache[logicalName] = &ftEntry{ft: ft}
	e.cacheMu.Unlock()

	return e.render(io, ft, opts)
}

func (e *Engine) render(sink IOSink, ft *vm.FunctionTable, opts []RenderOption) error {
	cfg := applyRenderOptions(opts)
	v := vm.New(e, sinkWriter{sink}, e.vmOpts)
	for name, val := range cfg.upvalues {
		v.BindUpvalue(name, reownUpvalue(v.RootScope(), val))
	}
	if err := v.Render(ft); err != nil {
		return e.setLastError(err)
	}
	e.setLastError(nil)
	return nil
}

// reownUpvalue tries to gc.Move a caller-supplied reference value into the
// render's own root scope. gc.Move only moves toward an ancestor scope, and
// the render's fresh root scope is never an ancestor of a scope the caller
// allocated into, so an owned object is returned unchanged and stays owned
// by the caller's scope; const-strings and primitives also pass through.
func reownUpvalue(scope *gc.Scope, v value.Value) value.Value {
	if !v.IsReference() {
		return v
	}
	moved, err := gc.Move(v, scope)
	if err != nil {
		// The object's scope is not a descendant of the render's root
		// scope; use as-is.
		return v
	}
	return moved
}

// sinkWriter adapts an IOSink to io.Writer for vm.New, which only needs
// Write to stream PRINT output.
type sinkWriter struct{ sink IOSink }

func (w sinkWriter) Write(p []byte) (int, error) { return w.sink.Write(p) }
