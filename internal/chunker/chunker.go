// Package chunker splits long model answers into pieces that fit a
// translation service's request limit, cutting at the most natural boundary
// available.
package chunker

import (
	"strings"
	"unicode"
)

// sentenceEnds covers the scripts in the benchmark: Latin, CJK full-width
// punctuation, the Arabic question mark and the Devanagari danda.
var sentenceEnds = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
	'؟': true, '।': true,
}

// Split breaks text into chunks of at most maxChars runes. Cut points are
// tried in order: paragraph break, end of sentence, whitespace, hard cut.
// maxChars <= 0 disables splitting. Chunks are trimmed and never empty.
func Split(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return []string{text}
	}

	var chunks []string
	for len(runes) > maxChars {
		cut := cutPoint(runes, maxChars)
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			chunks = append(chunks, piece)
		}
		runes = []rune(strings.TrimSpace(string(runes[cut:])))
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

// cutPoint returns how many of the first limit runes to consume. runes is
// longer than limit, so runes[limit] is the first rune that does not fit.
func cutPoint(runes []rune, limit int) int {
	for i := limit - 1; i > 0; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}

	for i := limit - 1; i > 0; i-- {
		if !sentenceEnds[runes[i]] {
			continue
		}
		// full-width marks and the danda are not followed by a space
		if unicode.IsSpace(runes[i+1]) || runes[i] > unicode.MaxASCII {
			return i + 1
		}
	}

	for i := limit; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}

	return limit
}
