// Package validator checks that text is written in the language it was
// requested in: translations in their target language, model answers in the
// language of the prompt.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/moraleval/internal/detector"
)

// minValidationLength is the rune count below which detection is unreliable
// and text is accepted without a check.
const minValidationLength = 20

// Validator wraps a language detector. Building a detector is expensive;
// reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator whose detector considers only the given language
// codes, or every language when none are given.
func New(codes ...string) *Validator {
	return &Validator{det: detector.New(codes...)}
}

// IsValid reports whether text appears to be written in lang. Regional
// subtags are ignored, so "zh-cn" accepts text detected as "zh".
//
// Short texts and texts whose language cannot be determined pass. A detected
// mismatch returns false with an error naming both codes.
func (v *Validator) IsValid(text, lang string) (bool, error) {
	if lang == "" {
		return true, nil
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return false, fmt.Errorf("text is empty")
	}
	if len([]rune(text)) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	want := detector.BaseCode(lang)
	if detected != want {
		return false, fmt.Errorf("expected %s but detected %s", want, detected)
	}
	return true, nil
}
