// Package detector identifies the language of model output.
package detector

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
	"golang.org/x/text/language"
)

type Detector struct {
	detector lingua.LanguageDetector
}

// New builds a detector restricted to the given language codes (for example
// "ar", "zh-cn", "sw"). Restricting the candidate set makes detection both
// faster and more accurate. Fewer than two recognised codes falls back to
// every language lingua knows.
func New(codes ...string) *Detector {
	var isoCodes []lingua.IsoCode639_1
	seen := make(map[lingua.IsoCode639_1]bool)
	for _, c := range codes {
		iso := lingua.GetIsoCode639_1FromValue(BaseCode(c))
		if iso == lingua.UnknownIsoCode639_1 || seen[iso] {
			continue
		}
		seen[iso] = true
		isoCodes = append(isoCodes, iso)
	}

	builder := lingua.NewLanguageDetectorBuilder()
	var b lingua.LanguageDetectorBuilder
	if len(isoCodes) >= 2 {
		b = builder.FromIsoCodes639_1(isoCodes...)
	} else {
		b = builder.FromAllLanguages()
	}
	return &Detector{detector: b.Build()}
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if strings.TrimSpace(text) == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the lower-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return strings.ToLower(lang.IsoCode639_1().String()), true
}

// BaseCode reduces a language tag to its ISO 639 base: "zh-cn" → "zh",
// "pt-BR" → "pt". Unparseable input is lower-cased and returned as is.
func BaseCode(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return strings.ToLower(code)
	}
	base, _ := tag.Base()
	return base.String()
}
