// Package engine ties the compiler, optimizer, and VM into the render API
// spec §6 describes: a template cache keyed by logical name, a VFS/IOSink
// collaborator pair, host function/filter/test/class registration, and
// render_file/render_data/last_error.
//
// Grounded on the teacher's constructor-with-defaults style (internal/vm's
// NewVM(chunk)) generalized to the functional-options shape used by
// other_examples/templatex's New(root string, opts ...Option) — a real
// Go template engine doing the same cache+render job this one does.
package engine

import (
	"fmt"
	"sync"
	"time"

	"ajj/internal/ajjjson"
	"ajj/internal/builtin"
	"ajj/internal/compiler"
	"ajj/internal/gc"
	"ajj/internal/optimizer"
	"ajj/internal/value"
	"ajj/internal/vm"
)

// Engine owns the template cache, class registry, and VM defaults for a
// series of renders. Per §5 it is not safe for concurrent rendering; the
// cache/class-registry mutexes exist to make repeated sequential setup
// (tests, a dev server reloading templates) safe, not to support
// rendering two templates on the same Engine at once.
type Engine struct {
	vfs     VFS
	vmOpts  vm.Options
	userData interface{}

	cacheMu sync.RWMutex
	rawCache map[string]*rawEntry
	ftCache  map[string]*ftEntry
	loading  map[string]bool

	classMu sync.RWMutex
	classes map[string]*HostClass

	lastErrMu sync.Mutex
	lastErr   error
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithVFS sets the virtual filesystem collaborator used to resolve
// render_file/extends/include/import targets. Without one, only
// render_data (and templates it transitively extends/includes by a logical
// name previously rendered through RenderData) are available.
func WithVFS(v VFS) Option { return func(e *Engine) { e.vfs = v } }

// WithMaxCallDepth/WithMaxStackDepth/WithMaxIncludeDepth bound the
// resources a single render may consume (§5); zero keeps the VM default.
func WithMaxCallDepth(n int) Option  { return func(e *Engine) { e.vmOpts.MaxCallDepth = n } }
func WithMaxStackDepth(n int) Option { return func(e *Engine) { e.vmOpts.MaxStackDepth = n } }
func WithMaxIncludeDepth(n int) Option {
	return func(e *Engine) { e.vmOpts.MaxIncludeDepth = n }
}

// WithUserData stashes opaque host state reachable from registered
// functions/classes via Engine.UserData (§6's "opaque user data").
func WithUserData(ud interface{}) Option { return func(e *Engine) { e.userData = ud } }

// New builds an Engine applying the given options over sensible defaults,
// and registers internal/ajjjson's to_json/to_jsonc filters (they depend
// on internal/builtin for list/dict construction and so cannot register
// themselves from inside internal/builtin without an import cycle).
func New(opts ...Option) *Engine {
	e := &Engine{
		rawCache: map[string]*rawEntry{},
		ftCache:  map[string]*ftEntry{},
		loading:  map[string]bool{},
		classes:  map[string]*HostClass{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	ajjjson.RegisterFilters()
	return e
}

// UserData returns the opaque value passed via WithUserData.
func (e *Engine) UserData() interface{} { return e.userData }

// RegisterFunction exposes a Go function to templates under name (§6's
// "register a function").
func (e *Engine) RegisterFunction(name string, fn func(scope *gc.Scope, args []value.Value) (value.Value, error)) {
	builtin.RegisterFunc(name, fn)
}

// RegisterFilter exposes a Go function as a `|name` filter (§6: "same
// signature as function").
func (e *Engine) RegisterFilter(name string, fn func(scope *gc.Scope, args []value.Value) (value.Value, error)) {
	builtin.RegisterFilter(name, fn)
}

// RegisterTest exposes a Go function as an `is name` test; the engine
// does not itself coerce the result to boolean, matching internal/builtin's
// existing test entries, which already return value.Boolean themselves.
func (e *Engine) RegisterTest(name string, fn func(scope *gc.Scope, args []value.Value) (value.Value, error)) {
	builtin.RegisterTest(name, fn)
}

// LastError returns the most recent render's failure, accumulated since
// the last successful call (§6's last_error()).
func (e *Engine) LastError() error {
	e.lastErrMu.Lock()
	defer e.lastErrMu.Unlock()
	return e.lastErr
}

// LastErrorString mirrors spec §6's last_error() signature exactly (a
// descriptive string, not a Go error) for hosts that want the C-API shape
// rather than idiomatic error handling.
func (e *Engine) LastErrorString() string {
	if err := e.LastError(); err != nil {
		return err.Error()
	}
	return ""
}

func (e *Engine) setLastError(err error) error {
	e.lastErrMu.Lock()
	e.lastErr = err
	e.lastErrMu.Unlock()
	return err
}

// rawEntry caches one file's compiled-but-not-extends-resolved template,
// keyed by VFS path, so a base template shared by several children is
// only compiled once per cache generation.
type rawEntry struct {
	tmpl  *compiler.Template
	mtime time.Time
}

// ftEntry caches one logical name's fully extends-resolved FunctionTable,
// the unit vm.Loader hands the VM.
type ftEntry struct {
	ft    *vm.FunctionTable
	mtime time.Time
}

// ClearCache drops every cached compile, forcing the next render to
// recompile from source. Used by internal/devserver on a watched-file
// change notification.
func (e *Engine) ClearCache() {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.rawCache = map[string]*rawEntry{}
	e.ftCache = map[string]*ftEntry{}
}

// optimizeTemplate runs the peephole optimizer (§4.5) over every program a
// freshly compiled template owns, in place.
func optimizeTemplate(tmpl *compiler.Template) error {
	opt, err := optimizer.Optimize(tmpl.Main)
	if err != nil {
		return fmt.Errorf("%s: %w", tmpl.Name, err)
	}
	tmpl.Main = opt
	for name, prog := range tmpl.Blocks {
		opt, err := optimizer.Optimize(prog)
		if err != nil {
			return fmt.Errorf("%s: block %s: %w", tmpl.Name, name, err)
		}
		tmpl.Blocks[name] = opt
	}
	for name, prog := range tmpl.Macros {
		opt, err := optimizer.Optimize(prog)
		if err != nil {
			return fmt.Errorf("%s: macro %s: %w", tmpl.Name, name, err)
		}
		tmpl.Macros[name] = opt
	}
	return nil
}
