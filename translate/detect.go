package translate

import (
	"strings"

	"github.com/pemistahl/lingua-go"

	"go.aimuz.me/voicebridge/langs"
)

// LinguaDetector detects languages offline with lingua, restricted to the
// languages of a catalog.
type LinguaDetector struct {
	detector lingua.LanguageDetector
	// ISO 639-1 base code -> catalog code
	codes map[string]string
}

// NewLinguaDetector builds a detector for the given catalog codes. Codes
// lingua does not know are ignored. With fewer than two usable languages the
// detector falls back to every language lingua supports.
func NewLinguaDetector(codes []string) *LinguaDetector {
	byISO := make(map[string]lingua.Language)
	for _, l := range lingua.AllLanguages() {
		byISO[strings.ToLower(l.IsoCode639_1().String())] = l
	}

	mapping := make(map[string]string)
	var languages []lingua.Language
	for _, code := range codes {
		base := langs.ISOBase(code)
		l, ok := byISO[base]
		if !ok {
			continue
		}
		if _, seen := mapping[base]; seen {
			continue
		}
		mapping[base] = code
		languages = append(languages, l)
	}

	builder := lingua.NewLanguageDetectorBuilder()
	var detector lingua.LanguageDetector
	if len(languages) >= 2 {
		detector = builder.FromLanguages(languages...).Build()
	} else {
		detector = builder.FromAllLanguages().Build()
	}

	return &LinguaDetector{detector: detector, codes: mapping}
}

// Detect implements Detector. The returned code is the catalog code when the
// language is in the catalog, otherwise the ISO 639-1 code.
func (d *LinguaDetector) Detect(text string) (string, bool) {
	l, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}

	base := strings.ToLower(l.IsoCode639_1().String())
	if code, ok := d.codes[base]; ok {
		return code, true
	}
	return base, base != ""
}
