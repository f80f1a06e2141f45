package tokens

import "unicode/utf8"

// Script is the dominant writing system of a text, as seen by Estimate.
type Script int

const (
	ScriptEnglish Script = iota
	ScriptChinese
	ScriptJapanese
	ScriptKorean
)

func (s Script) String() string {
	switch s {
	case ScriptChinese:
		return "zh"
	case ScriptJapanese:
		return "ja"
	case ScriptKorean:
		return "ko"
	default:
		return "en"
	}
}

// Per-rune weights in tenths of a token for CJK-dominant text.
const (
	weightChinese  = 10
	weightJapanese = 12
	weightKorean   = 13
	weightOther    = 2
)

func isChinese(r rune) bool  { return r >= 0x4E00 && r <= 0x9FFF }
func isJapanese(r rune) bool { return (r >= 0x3040 && r <= 0x309F) || (r >= 0x30A0 && r <= 0x30FF) }
func isKorean(r rune) bool   { return r >= 0xAC00 && r <= 0xD7AF }
func isEnglish(r rune) bool  { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }

// DominantScript returns the script with the most matching characters.
// Ties resolve Chinese > Japanese > Korean > English.
func DominantScript(text string) Script {
	var zh, ja, ko, en int
	for _, r := range text {
		switch {
		case isChinese(r):
			zh++
		case isJapanese(r):
			ja++
		case isKorean(r):
			ko++
		case isEnglish(r):
			en++
		}
	}

	best, bestCount := ScriptEnglish, en
	// Walk from lowest to highest priority so >= lets the higher one win ties.
	for _, c := range []struct {
		s Script
		n int
	}{{ScriptKorean, ko}, {ScriptJapanese, ja}, {ScriptChinese, zh}} {
		if c.n > 0 && c.n >= bestCount {
			best, bestCount = c.s, c.n
		}
	}
	return best
}

// Estimate returns a language-aware token estimate. It is a pure function.
//
// CJK-dominant text is weighted per rune (Chinese 1.0, Japanese 1.2,
// Korean 1.3, anything else 0.2) and rounded up. Other text is
// ceil(runes / 4).
func Estimate(text string) int {
	if text == "" {
		return 0
	}

	if DominantScript(text) == ScriptEnglish {
		n := utf8.RuneCountInString(text)
		return (n + 3) / 4
	}

	tenths := 0
	for _, r := range text {
		switch {
		case isChinese(r):
			tenths += weightChinese
		case isJapanese(r):
			tenths += weightJapanese
		case isKorean(r):
			tenths += weightKorean
		default:
			tenths += weightOther
		}
	}
	return (tenths + 9) / 10
}
