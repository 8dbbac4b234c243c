package ajjjson_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ajj/internal/ajjjson"
	"ajj/internal/builtin"
	"ajj/internal/gc"
	"ajj/internal/value"
)

func TestDecodeObjectAndArray(t *testing.T) {
	scope := gc.NewRootScope()
	v, err := ajjjson.Decode(scope, `{"a": 1, "b": [true, false, null, "x"]}`, "t.json")
	require.NoError(t, err)

	m, keys, ok := builtin.AsDict(v)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, keys)
	assert.Equal(t, value.Number(1), m["a"])

	items, ok := builtin.AsList(m["b"])
	require.True(t, ok)
	require.Len(t, items, 4)
	assert.Equal(t, value.Boolean(true), items[0])
	assert.Equal(t, value.Boolean(false), items[1])
	assert.Equal(t, value.None(), items[2])
	assert.Equal(t, "x", gc.StringOf(items[3]))
}

func TestDecodeRejectsScalarRoot(t *testing.T) {
	scope := gc.NewRootScope()
	_, err := ajjjson.Decode(scope, `42`, "t.json")
	assert.Error(t, err)
}

func TestDecodeRejectsTrailingGarbage(t *testing.T) {
	scope := gc.NewRootScope()
	_, err := ajjjson.Decode(scope, `{} garbage`, "t.json")
	assert.Error(t, err)
}

func TestDecodeUnicodeEscape(t *testing.T) {
	scope := gc.NewRootScope()
	// The JSON text holds a six-character backslash-u escape for U+00E9.
	v, err := ajjjson.Decode(scope, `["\`+`u00e9"]`, "t.json")
	require.NoError(t, err)
	items, _ := builtin.AsList(v)
	assert.Equal(t, "é", gc.StringOf(items[0]))
}

func TestEncodeCompactAndPretty(t *testing.T) {
	scope := gc.NewRootScope()
	d := builtin.NewDictFrom(scope, []string{"a", "b"}, []value.Value{value.Number(1), gc.NewConstString("x")})

	compact, err := ajjjson.Encode(d, false)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":"x"}`, compact)

	pretty, err := ajjjson.Encode(d, true)
	require.NoError(t, err)
	assert.Contains(t, pretty, "\n")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	scope := gc.NewRootScope()
	orig, err := ajjjson.Decode(scope, `{"n": 3.5, "list": [1,2,3]}`, "t.json")
	require.NoError(t, err)
	out, err := ajjjson.Encode(orig, false)
	require.NoError(t, err)
	back, err := ajjjson.Decode(scope, out, "t2.json")
	require.NoError(t, err)

	m1, _, _ := builtin.AsDict(orig)
	m2, _, _ := builtin.AsDict(back)
	assert.Equal(t, m1["n"], m2["n"])
}
