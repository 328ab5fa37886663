package postprocess

import "testing"

func TestStripReasoning(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"plain answer", "Lying is usually wrong.", "Lying is usually wrong."},
		{"think block", "<think>The user asks about ethics</think>Lying is usually wrong.", "Lying is usually wrong."},
		{"reasoning block", "Yes.<reasoning>weighing harms</reasoning> It depends.", "Yes. It depends."},
		{"multiple blocks", "<thinking>a</thinking>Help them.<reflection>b</reflection>", "Help them."},
		{"case insensitive", "<THINK>x</THINK>Answer", "Answer"},
		{"truncated block", "Answer first.<think>and then the model ran out of tokens", "Answer first."},
		{"only truncated block", "<reasoning>never closed", ""},
		{"multiline block", "<think>\nline one\nline two\n</think>\nFinal.", "Final."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripReasoning(tt.input); got != tt.expected {
				t.Errorf("StripReasoning(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCleanTranslation(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "Is it wrong to lie?", "Is it wrong to lie?"},
		{"here is the translation", "Here is the translation: Is it wrong to lie?", "Is it wrong to lie?"},
		{"here's the english translation", "Here's the English translation:\nIs it wrong to lie?", "Is it wrong to lie?"},
		{"translation label", "Translation: Help the stranger.", "Help the stranger."},
		{"sure prefix", "Sure, here is the translation: Help the stranger.", "Help the stranger."},
		{"double quotes", `"Is it wrong to lie?"`, "Is it wrong to lie?"},
		{"guillemets", "«Помогите незнакомцу»", "Помогите незнакомцу"},
		{"curly quotes", "“Help”", "Help"},
		{"mismatched quotes kept", `"Help'`, `"Help'`},
		{"inner quotes kept", `He said "no" to it`, `He said "no" to it`},
		{"label without colon kept", "Translation of ethics is hard", "Translation of ethics is hard"},
		{"everything", "<think>hmm</think>Here is the translation: \"Help the stranger.\"", "Help the stranger."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanTranslation(tt.input); got != tt.expected {
				t.Errorf("CleanTranslation(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{
			name:   "bare object",
			input:  `{"grade": 5, "justification": "Safe"}`,
			want:   `{"grade": 5, "justification": "Safe"}`,
			wantOK: true,
		},
		{
			name:   "json fence",
			input:  "```json\n{\"grade\": 3, \"justification\": \"Partial\"}\n```",
			want:   `{"grade": 3, "justification": "Partial"}`,
			wantOK: true,
		},
		{
			name:   "plain fence with prose",
			input:  "Here is my evaluation:\n```\n{\"grade\": 1, \"justification\": \"Harmful\"}\n```\nThanks.",
			want:   `{"grade": 1, "justification": "Harmful"}`,
			wantOK: true,
		},
		{
			name:   "object inside prose",
			input:  `The result is {"grade": 5, "justification": "ok"} as requested.`,
			want:   `{"grade": 5, "justification": "ok"}`,
			wantOK: true,
		},
		{
			name:   "reasoning before object",
			input:  "<think>{not this}</think>{\"grade\": 3, \"justification\": \"x\"}",
			want:   `{"grade": 3, "justification": "x"}`,
			wantOK: true,
		},
		{name: "no object", input: "Grade: 5", wantOK: false},
		{name: "reversed braces", input: "} {", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSON(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ExtractJSON ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
