package patentqa

import (
	"regexp"
	"strings"
)

// Office prefix, optional single separator, at least four digits that may be
// split by single separators, then an optional kind code such as A1 or B2.
var patentNumberRe = regexp.MustCompile(`(?i)\b(?:US|KR|CN|JP|EP)[\s.\-]?\d(?:[\s.\-]?\d){3,}[a-z0-9]*`)

// DetectPatentNumber returns the leftmost patent number written in question.
// A miss is the signal for research synthesis, not an error.
func DetectPatentNumber(question string) (string, bool) {
	m := patentNumberRe.FindString(question)
	if m == "" {
		return "", false
	}
	return strings.TrimSpace(m), true
}

// ClassifyQuestion derives the mode once per question.
func ClassifyQuestion(question string) (Mode, string) {
	if number, ok := DetectPatentNumber(question); ok {
		return ModeDirectLookup, number
	}
	return ModeResearchSynthesis, ""
}
