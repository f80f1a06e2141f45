package translator

import (
	"strings"

	"golang.org/x/text/language"
)

// SupportedLanguages are the codes the API advertises.
var SupportedLanguages = []string{"en", "zh-CN", "zh-TW", "es", "fr", "de", "ja", "ko"}

// Normalize canonicalizes a language code. Chinese keeps a region
// (zh-CN for Simplified, zh-TW for Traditional); every other language is
// reduced to its base code. Unparseable codes are returned trimmed.
func Normalize(code string) string {
	code = strings.TrimSpace(code)
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	base, _ := tag.Base()
	if base.String() == "zh" {
		if script, _ := tag.Script(); script.String() == "Hant" {
			return "zh-TW"
		}
		return "zh-CN"
	}
	return base.String()
}

// BaseCode returns the two- or three-letter base of a code ("zh-CN" -> "zh").
func BaseCode(code string) string {
	if i := strings.IndexByte(code, '-'); i > 0 {
		return code[:i]
	}
	return code
}

// DetectLanguage guesses the language of text from its characters.
// CJK ranges win first (kana marks Japanese even alongside kanji), then
// characters unique to Spanish, German or French, then shared accented
// vowels. Anything else is English.
func DetectLanguage(text string) string {
	var hasZh, hasJa, hasKo bool
	for _, r := range text {
		switch {
		case r >= 0x4E00 && r <= 0x9FFF:
			hasZh = true
		case (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF):
			hasJa = true
		case r >= 0xAC00 && r <= 0xD7AF:
			hasKo = true
		}
	}
	switch {
	case hasJa:
		return "ja"
	case hasZh:
		return "zh-CN"
	case hasKo:
		return "ko"
	}

	lower := strings.ToLower(text)
	switch {
	case strings.ContainsAny(lower, "ñ¿¡"):
		return "es"
	case strings.ContainsAny(lower, "ß"):
		return "de"
	case strings.ContainsAny(lower, "àâèêëîïôùûÿçœ"):
		return "fr"
	case strings.ContainsAny(lower, "äöü"):
		return "de"
	case strings.ContainsAny(lower, "áíóú"):
		return "es"
	case strings.ContainsAny(lower, "é"):
		return "fr"
	}
	return "en"
}
