package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/engine"
	"ajj/internal/gc"
	"ajj/internal/value"
)

// mapVFS is a fixed, in-memory VFS for tests: every path is "current"
// forever, matching a test's expectation that nothing changes mid-run.
type mapVFS struct {
	files map[string]string
	mtime time.Time
}

func newMapVFS(files map[string]string) *mapVFS {
	return &mapVFS{files: files, mtime: time.Unix(1700000000, 0)}
}

func (v *mapVFS) Load(path string) ([]byte, time.Time, error) {
	src, ok := v.files[path]
	if !ok {
		return nil, time.Time{}, assertNotFound(path)
	}
	return []byte(src), v.mtime, nil
}

func (v *mapVFS) Timestamp(path string) (time.Time, error) {
	if _, ok := v.files[path]; !ok {
		return time.Time{}, assertNotFound(path)
	}
	return v.mtime, nil
}

func (v *mapVFS) IsCurrent(path string, since time.Time) (bool, error) {
	return !since.Before(v.mtime), nil
}

type notFoundError string

func (e notFoundError) Error() string { return "no such template: " + string(e) }

func assertNotFound(path string) error { return notFoundError(path) }

func TestRenderDataPlainText(t *testing.T) {
	e := engine.New()
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderData(sink, "hello world, no placeholders here", "plain"))
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "hello world, no placeholders here", out)
}

func TestRenderDataExpression(t *testing.T) {
	e := engine.New()
	sink := engine.NewBufferSink()
	name := gc.NewConstString("world")
	err := e.RenderData(sink, "hello {{ name }}!", "greeting", engine.WithUpvalue("name", name))
	require.NoError(t, err)
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "hello world!", out)
}

func TestRenderDataUndefinedPrintsNone(t *testing.T) {
	e := engine.New()
	sink := engine.NewBufferSink()
	err := e.RenderData(sink, "[{{ missing }}]", "undef")
	require.NoError(t, err)
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "[none]", out)
}

func TestRenderFileExtendsOverridesBlock(t *testing.T) {
	vfs := newMapVFS(map[string]string{
		"base.html":  "before-{% block content %}base{% endblock %}-after",
		"child.html": "{% extends \"base.html\" %}{% block content %}child{% endblock %}",
	})
	e := engine.New(engine.WithVFS(vfs))
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderFile(sink, "child.html"))
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "before-child-after", out)
}

func TestRenderFileSuperCallsParentBlock(t *testing.T) {
	vfs := newMapVFS(map[string]string{
		"base.html":  "{% block content %}base{% endblock %}",
		"child.html": "{% extends \"base.html\" %}{% block content %}{{ super() }}+child{% endblock %}",
	})
	e := engine.New(engine.WithVFS(vfs))
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderFile(sink, "child.html"))
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "base+child", out)
}

func TestRenderFileWithoutVFSFails(t *testing.T) {
	e := engine.New()
	sink := engine.NewBufferSink()
	err := e.RenderFile(sink, "anything.html")
	require.Error(t, err)
	assert.Equal(t, err, e.LastError())
}

func TestRenderFileIncludeRendersIntoBuffer(t *testing.T) {
	vfs := newMapVFS(map[string]string{
		"main.html":    "A-{% include \"partial.html\" %}-B",
		"partial.html": "mid",
	})
	e := engine.New(engine.WithVFS(vfs))
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderFile(sink, "main.html"))
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "A-mid-B", out)
}

func TestRegisterFunctionIsCallableFromTemplate(t *testing.T) {
	e := engine.New()
	e.RegisterFunction("shout", func(scope *gc.Scope, args []value.Value) (value.Value, error) {
		return gc.NewDynamicString(scope, "LOUD"), nil
	})
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderData(sink, "{{ shout() }}", "fn"))
	out, err := sink.Content()
	require.NoError(t, err)
	assert.Equal(t, "LOUD", out)
}

func TestRegisterClassAssignsStableTypeTag(t *testing.T) {
	e := engine.New()
	tag := e.RegisterClass(&engine.HostClass{
		Name: "Widget",
		Ctor: func(scope *gc.Scope, args []value.Value) (interface{}, error) { return struct{}{}, nil },
	})
	assert.GreaterOrEqual(t, tag, engine.UserTypeFloor)
	assert.Equal(t, tag, e.TypeTag("Widget"))
	again := e.RegisterClass(&engine.HostClass{Name: "Widget", Ctor: func(scope *gc.Scope, args []value.Value) (interface{}, error) { return nil, nil }})
	assert.Equal(t, tag, again)
}

func TestStaleMtimeForcesRecompile(t *testing.T) {
	vfs := newMapVFS(map[string]string{"t.html": "v1"})
	e := engine.New(engine.WithVFS(vfs))
	sink := engine.NewBufferSink()
	require.NoError(t, e.RenderFile(sink, "t.html"))
	out, _ := sink.Content()
	assert.Equal(t, "v1", out)

	vfs.files["t.html"] = "v2"
	vfs.mtime = vfs.mtime.Add(time.Second)
	sink2 := engine.NewBufferSink()
	require.NoError(t, e.RenderFile(sink2, "t.html"))
	out2, _ := sink2.Content()
	assert.Equal(t, "v2", out2)
}
