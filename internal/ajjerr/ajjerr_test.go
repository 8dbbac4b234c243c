package ajjerr

import (
	"strings"
	"testing"
)

func TestErrorRendersSnippetAndMessage(t *testing.T) {
	src := "line one\nline two\nline three"
	err := New(Runtime, Location{File: "t.jinja", Line: 2, Column: 6}, "undefined variable %q", "x").WithSource(src)

	out := err.Error()
	if !strings.Contains(out, "line two") {
		t.Fatalf("expected snippet to contain offending line, got: %s", out)
	}
	if !strings.Contains(out, "!Message: undefined variable \"x\"") {
		t.Fatalf("expected message suffix, got: %s", out)
	}
	if !strings.Contains(out, "[Runtime:(t.jinja:2,6)]") {
		t.Fatalf("expected phase/location header, got: %s", out)
	}
}

func TestPushFrameOrdersInnermostFirst(t *testing.T) {
	err := New(Runtime, Location{Line: 1}, "boom")
	err.PushFrame(Frame{Function: "outer"})
	err.PushFrame(Frame{Function: "inner"})

	if err.Stack[0].Function != "inner" || err.Stack[1].Function != "outer" {
		t.Fatalf("expected inner frame first, got %+v", err.Stack)
	}
}
