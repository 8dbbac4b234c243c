package ajjjson

import (
	"fmt"
	"strconv"
	"strings"

	"ajj/internal/builtin"
	"ajj/internal/gc"
	"ajj/internal/value"
)

// Encode renders v as JSON text; pretty selects 2-space indentation (the
// `to_jsonc` filter) over compact output (`to_json`).
func Encode(v value.Value, pretty bool) (string, error) {
	var b strings.Builder
	if err := encodeValue(&b, v, pretty, 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeValue(b *strings.Builder, v value.Value, pretty bool, depth int) error {
	switch v.Kind {
	case value.KindNone:
		b.WriteString("null")
	case value.KindBool:
		if v.Bool {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case value.KindNumber:
		b.WriteString(formatJSONNumber(v.Num))
	case value.KindString:
		encodeString(b, gc.StringOf(v))
	case value.KindObject:
		if items, ok := builtin.AsList(v); ok {
			return encodeArray(b, items, pretty, depth)
		}
		if m, keys, ok := builtin.AsDict(v); ok {
			return encodeObject(b, m, keys, pretty, depth)
		}
		return fmt.Errorf("value of type %s is not JSON-serializable", v.TypeName())
	default:
		return fmt.Errorf("value of type %s is not JSON-serializable", v.TypeName())
	}
	return nil
}

func encodeArray(b *strings.Builder, items []value.Value, pretty bool, depth int) error {
	if len(items) == 0 {
		b.WriteString("[]")
		return nil
	}
	b.WriteByte('[')
	for i, it := range items {
		if i > 0 {
			b.WriteByte(',')
		}
		newline(b, pretty, depth+1)
		if err := encodeValue(b, it, pretty, depth+1); err != nil {
			return err
		}
	}
	newline(b, pretty, depth)
	b.WriteByte(']')
	return nil
}

func encodeObject(b *strings.Builder, m map[string]value.Value, keys []string, pretty bool, depth int) error {
	if len(keys) == 0 {
		b.WriteString("{}")
		return nil
	}
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		newline(b, pretty, depth+1)
		encodeString(b, k)
		b.WriteByte(':')
		if pretty {
			b.WriteByte(' ')
		}
		if err := encodeValue(b, m[k], pretty, depth+1); err != nil {
			return err
		}
	}
	newline(b, pretty, depth)
	b.WriteByte('}')
	return nil
}

func newline(b *strings.Builder, pretty bool, depth int) {
	if !pretty {
		return
	}
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("  ", depth))
}

func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func formatJSONNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}

func filterToJSON(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	s, err := Encode(v, false)
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, s), nil
}

func filterToJSONC(scope *gc.Scope, args []value.Value) (value.Value, error) {
	v := arg(args, 0)
	s, err := Encode(v, true)
	if err != nil {
		return value.Value{}, err
	}
	return gc.NewDynamicString(scope, s), nil
}

func arg(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return value.None()
}

// RegisterFilters folds to_json/to_jsonc into builtin's filter table; called
// once during engine startup to avoid builtin importing ajjjson directly.
func RegisterFilters() {
	builtin.RegisterFilter("to_json", filterToJSON)
	builtin.RegisterFilter("to_jsonc", filterToJSONC)
}
