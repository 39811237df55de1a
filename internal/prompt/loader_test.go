package prompt

import (
	"strings"
	"testing"
)

func TestGet_DefaultsPresent(t *testing.T) {
	l := NewLoader("")
	for _, name := range []Name{AnswerValidation, Introspective, Critique, ExtractValue} {
		text, err := l.Get(name)
		if err != nil {
			t.Fatalf("Get(%s): %v", name, err)
		}
		if text == "" {
			t.Errorf("Get(%s) returned empty template", name)
		}
	}
}

func TestGet_UnknownTemplate(t *testing.T) {
	l := NewLoader("")
	if _, err := l.Get(Name("nope")); err == nil {
		t.Error("expected error for unknown template name")
	}
}

func TestRender_SubstitutesFields(t *testing.T) {
	l := NewLoader("")
	out, err := l.Render(AnswerValidation, map[string]string{
		"Trace":  "USER -> hi",
		"Answer": "hello there",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(out, "USER -> hi") || !strings.Contains(out, "hello there") {
		t.Errorf("Render output missing substitutions: %q", out)
	}
}

func TestRender_MissingFieldIsEmpty(t *testing.T) {
	l := NewLoader("")
	out, err := l.Render(Critique, map[string]string{"Question": "q"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if strings.Contains(out, "<no value>") {
		t.Errorf("expected missing fields to render empty, got %q", out)
	}
}

func TestLoadOverrides_EmptyDirNoOp(t *testing.T) {
	l := NewLoader(t.TempDir())
	text, err := l.Get(Introspective)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if text != defaults[Introspective] {
		t.Error("expected default template when override dir has no matching files")
	}
}
