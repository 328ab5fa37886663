// Package postprocess strips LLM artifacts from model output: reasoning
// blocks, prompt echoes, wrapping quotes and code fences around JSON.
package postprocess

import (
	"regexp"
	"strings"
)

// reasoningRe matches closed <think>-style blocks. RE2 has no
// backreferences, so each tag is spelled out.
var reasoningRe = regexp.MustCompile(
	`(?is)<thinking>.*?</thinking>|<think>.*?</think>|<reasoning>.*?</reasoning>|<reflection>.*?</reflection>`,
)

// openReasoningRe matches a reasoning block cut off before its closing tag.
var openReasoningRe = regexp.MustCompile(
	`(?is)(?:<thinking>|<think>|<reasoning>|<reflection>).*$`,
)

// StripReasoning removes reasoning blocks from a model answer and leaves
// everything else as written. Used on benchmark responses before they are
// back-translated and graded.
func StripReasoning(text string) string {
	text = reasoningRe.ReplaceAllString(text, "")
	text = openReasoningRe.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// echoPatterns are lead-ins LLM translators add despite being told not to.
// Each needs a trailing colon so real content is left alone.
var echoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^here(?:'s| is)(?: the)? (?:english |translated )?(?:translation|text)\s*:`),
	regexp.MustCompile(`(?i)^(?:the )?(?:english )?(?:translation|translated text)\s*:`),
	regexp.MustCompile(`(?i)^(?:certainly|sure|of course)[,.]? here(?:'s| is)(?: the)? (?:english |translated )?(?:translation|text)\s*:`),
}

// CleanTranslation prepares LLM translator output for storage: reasoning
// blocks, a leading "Here is the translation:" and outer quotes are removed.
func CleanTranslation(text string) string {
	text = StripReasoning(text)
	for _, re := range echoPatterns {
		if loc := re.FindStringIndex(text); loc != nil {
			text = strings.TrimSpace(text[loc[1]:])
		}
	}
	return strings.TrimSpace(unquote(text))
}

// unquote drops one pair of quotes wrapping the whole text.
func unquote(text string) string {
	runes := []rune(text)
	n := len(runes)
	if n < 2 {
		return text
	}
	first, last := runes[0], runes[n-1]
	switch {
	case first == '"' && last == '"',
		first == '\'' && last == '\'',
		first == '«' && last == '»',
		first == '\u201C' && last == '\u201D',
		first == '\u2018' && last == '\u2019':
		return string(runes[1 : n-1])
	}
	return text
}

var fenceRe = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON returns the JSON object embedded in a judge reply. Code fences
// are unwrapped first; the object is the span from the first '{' to the last
// '}'. ok is false when there is no such span.
func ExtractJSON(text string) (string, bool) {
	text = StripReasoning(text)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
