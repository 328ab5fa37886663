package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"empty", "", 10, nil},
		{"blank", "  \n ", 10, nil},
		{"fits", "Short answer.", 100, []string{"Short answer."}},
		{"unlimited", "Short answer.", 0, []string{"Short answer."}},
		{
			name:     "paragraph boundary",
			text:     "First paragraph here.\n\nSecond paragraph here.",
			maxChars: 30,
			want:     []string{"First paragraph here.", "Second paragraph here."},
		},
		{
			name:     "sentence boundary",
			text:     "Lying is wrong. Helping is right. Both matter.",
			maxChars: 35,
			want:     []string{"Lying is wrong. Helping is right.", "Both matter."},
		},
		{
			name:     "chinese full stop",
			text:     "撒谎是错误的。帮助别人是对的。",
			maxChars: 10,
			want:     []string{"撒谎是错误的。", "帮助别人是对的。"},
		},
		{
			name:     "word boundary",
			text:     "one two three four five",
			maxChars: 10,
			want:     []string{"one two", "three four", "five"},
		},
		{
			name:     "hard cut",
			text:     "abcdefghijkl",
			maxChars: 5,
			want:     []string{"abcde", "fghij", "kl"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.text, tt.maxChars)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Split(%q, %d) = %q, want %q", tt.text, tt.maxChars, got, tt.want)
			}
		})
	}
}

func TestSplit_RespectsLimit(t *testing.T) {
	text := strings.Repeat("Это длинный ответ модели о морали. ", 200)
	chunks := Split(text, 500)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 500 {
			t.Errorf("chunk %d has %d runes, limit 500", i, n)
		}
		if c == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
	if joined := strings.Join(chunks, " "); joined != strings.TrimSpace(text) {
		t.Error("chunks joined with spaces should reproduce the text")
	}
}
