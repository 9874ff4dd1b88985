package textnorm

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Fixed normalization passes, compiled once. The pass order in Normalize is
// load-bearing: later passes assume earlier ones already ran.
var (
	// Repeated-character elongation (chōonpu runs)
	elongationRe = regexp.MustCompile(`ー{2,}`)

	// Whitespace directly preceding a known unit token
	unitGapRe = regexp.MustCompile(`(?i)\s+(μm|mg/dL|mmHg|℃|％|%)`)

	// Canonical single space between a numeric value and a unit token.
	// Applied in order: longer unit tokens first so "mmHg" is not consumed
	// by the bare "mm" rule.
	unitSpacing = []struct {
		re   *regexp.Regexp
		repl string
	}{
		{regexp.MustCompile(`(?i)(\d+)\s*mmhg`), "${1} mmHg"},
		{regexp.MustCompile(`(?i)(\d+)\s*mg/?dl`), "${1} mg/dL"},
		{regexp.MustCompile(`(?i)(\d+)\s*mm\b`), "${1} mm"},
		{regexp.MustCompile(`(?i)(\d+)\s*μm`), "${1} μm"},
		{regexp.MustCompile(`(\d+)\s*％`), "${1} %"},
		{regexp.MustCompile(`(\d+)\s*パーセント`), "${1} %"},
		{regexp.MustCompile(`(\d+)\s*%`), "${1} %"},
	}

	// CJK/Kana character adjacent to a Latin letter or digit
	cjkThenLatinRe = regexp.MustCompile(`([\p{Hiragana}\p{Katakana}\p{Han}ー])([A-Za-z0-9])`)
	latinThenCJKRe = regexp.MustCompile(`([A-Za-z0-9])([\p{Hiragana}\p{Katakana}\p{Han}ー])`)

	// Unit token immediately followed by a non-whitespace character
	postUnitRe = regexp.MustCompile(`(?i)(mg/dL|mmHg|%|％)(\S)`)

	wsRunRe = regexp.MustCompile(`\s+`)
)

// terminalMarks are the sentence-ending characters that suppress the
// appended full-width period. Width folding has already run by the time
// they are checked, so the exclamation and question marks are the narrow forms.
var terminalMarks = []string{"。", ".", "!", "?"}

// Normalizer applies the full correction pipeline to one string
type Normalizer struct {
	rules RuleSet
}

// NewNormalizer creates a normalizer over the given rule set
func NewNormalizer(rules RuleSet) *Normalizer {
	return &Normalizer{rules: rules}
}

// Normalize rewrites one raw recognition line. Every step is total and the
// step order must not change.
func (n *Normalizer) Normalize(text string) string {
	// 1. Orthographic: fold width variants, collapse elongation runs
	text = width.Fold.String(text)
	text = elongationRe.ReplaceAllString(text, "ー")

	// 2. Ordered dictionary rules
	text = n.rules.Apply(text)

	// 3. Compatibility normalization
	text = norm.NFKC.String(text)

	// 4. Collapse whitespace before unit tokens
	text = unitGapRe.ReplaceAllString(text, "${1}")

	// 5. Re-insert one canonical space between value and unit
	for _, u := range unitSpacing {
		text = u.re.ReplaceAllString(text, u.repl)
	}

	// 6. Space at CJK/Latin script boundaries, both directions
	text = cjkThenLatinRe.ReplaceAllString(text, "${1} ${2}")
	text = latinThenCJKRe.ReplaceAllString(text, "${1} ${2}")

	// 7. Full-width comma after a unit glued to the next clause
	text = postUnitRe.ReplaceAllString(text, "${1}、${2}")

	// 8. Terminate long sentences
	text = terminate(text)

	// 9. Collapse whitespace runs and trim
	text = strings.TrimSpace(wsRunRe.ReplaceAllString(text, " "))

	return text
}

// terminate appends a full-width period to strings longer than 30 characters
// that do not already end in a terminal mark.
func terminate(text string) string {
	if utf8.RuneCountInString(text) <= 30 {
		return text
	}

	for _, mark := range terminalMarks {
		if strings.HasSuffix(text, mark) {
			return text
		}
	}

	return text + "。"
}
