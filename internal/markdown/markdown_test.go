package markdown

import (
	"strings"
	"testing"
)

func TestToPlainText(t *testing.T) {
	md := "# Short answer\n\nLying is **usually** wrong, but see [this](https://example.org) & that.\n\n- Honesty builds trust\n- Deception causes harm\n"

	got := ToPlainText(md)

	for _, want := range []string{
		"Short answer",
		"Lying is usually wrong, but see this & that.",
		"- Honesty builds trust",
		"- Deception causes harm",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("plain text missing %q:\n%s", want, got)
		}
	}
	for _, unwanted := range []string{"<", ">", "**", "&amp;", "https://example.org", "\n\n\n"} {
		if strings.Contains(got, unwanted) {
			t.Errorf("plain text still contains %q:\n%s", unwanted, got)
		}
	}
}

func TestToPlainText_PlainInput(t *testing.T) {
	in := "It depends on the situation."
	if got := ToPlainText(in); got != in {
		t.Errorf("ToPlainText(%q) = %q", in, got)
	}
}

func TestToPlainText_Empty(t *testing.T) {
	if got := ToPlainText("  \n"); got != "" {
		t.Errorf("expected empty output, got %q", got)
	}
}

func TestTagName(t *testing.T) {
	tests := []struct {
		raw     string
		name    string
		closing bool
	}{
		{"p", "p", false},
		{"/P", "p", true},
		{`a href="x"`, "a", false},
		{"br /", "br", false},
		{"hr/", "hr", false},
	}
	for _, tt := range tests {
		name, closing := tagName(tt.raw)
		if name != tt.name || closing != tt.closing {
			t.Errorf("tagName(%q) = %q, %v; want %q, %v", tt.raw, name, closing, tt.name, tt.closing)
		}
	}
}
