package textnorm

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// Rule is one text-rewrite rule. Literal rules replace every occurrence of
// Pattern verbatim; regex rules substitute case-insensitively and support
// capture-group backreferences in the replacement.
type Rule struct {
	Pattern     string
	Replacement string
	Regex       bool
	Note        string

	re   *regexp.Regexp // compiled once at load time for regex rules
	repl string         // replacement with backreferences in expand syntax
}

// RuleSet is an ordered, non-empty list of rules. Order is significant:
// each rule's output feeds the next.
type RuleSet []Rule

// Apply runs every rule in order over the input
func (rs RuleSet) Apply(text string) string {
	for _, r := range rs {
		if r.Regex {
			text = r.re.ReplaceAllString(text, r.repl)
		} else {
			text = strings.ReplaceAll(text, r.Pattern, r.Replacement)
		}
	}
	return text
}

// newRule compiles a rule. Regex patterns are made case-insensitive and
// replacements may use either \1 or ${1} backreference syntax.
func newRule(pattern, replacement string, isRegex bool, note string) (Rule, error) {
	rule := Rule{
		Pattern:     pattern,
		Replacement: replacement,
		Regex:       isRegex,
		Note:        note,
	}

	if isRegex {
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return Rule{}, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		rule.re = re
		rule.repl = convertReplacement(replacement)
	}

	return rule, nil
}

// convertReplacement turns \1-style backreferences into the ${1} expand
// syntax and escapes literal dollar signs.
func convertReplacement(repl string) string {
	var b strings.Builder
	for i := 0; i < len(repl); i++ {
		switch {
		case repl[i] == '$':
			// A ${N} reference passes through; a bare $ is escaped
			if i+1 < len(repl) && repl[i+1] == '{' {
				b.WriteByte('$')
			} else {
				b.WriteString("$$")
			}
		case repl[i] == '\\' && i+1 < len(repl) && repl[i+1] >= '1' && repl[i+1] <= '9':
			b.WriteString("${")
			b.WriteByte(repl[i+1])
			b.WriteByte('}')
			i++
		default:
			b.WriteByte(repl[i])
		}
	}
	return b.String()
}

// fallbackRows is the built-in medical correction dictionary, used when the
// external TSV resource is absent or yields no usable rules. All entries are
// regex rules.
var fallbackRows = []struct {
	pattern, replacement string
}{
	{`手素`, `主訴`},
	{`三素`, `主訴`},
	{`スポ.?2`, `SpO2`},
	{`スポー?に?`, `SpO2`},
	{`SpO2\s*(\d+)`, `SpO2 \1`},
	{`c ?r ?p`, `CRP`},
	{`c\s*ガール\s*p\s*12\s*(?:[\.]|ピリオド)?\s*3`, `CRP12.3`},
	{`レバーフロキサ.*`, `レボフロキサシン`},
	{`ナイク`, `内科`},
	{`若白`, `脈拍`},
	{`貼って9?1200`, `白血球1万1200`},
	{`4リットル`, `毎デシリットル`},
	{`土石`, `と咳`},
	{`ミリグラムごとで`, `ミリグラム毎`},
	{`c\s*d`, `CT`},
	{`右下歯`, `右下葉`},
	{`(\d+)の(\d+)`, `\1/\2`},
	{`ミリグラム毎毎`, `ミリグラム毎`},
	{`ミリグラム毎デシリットル`, `mg/dL`},
	{`CRP\s*([\d\.]+)\s*ミリグラム毎デシリットル`, `CRP \1 mg/dL`},
	{`CRP\s*([\d\.]+)\s*mg/?dL`, `CRP \1 mg/dL`},
	{`(\d+)ミリグラム`, `\1 mg`},
	{`(\d+)\s*mg\b`, `\1 mg`},
	{`(\d+)ミリ`, `\1 mm`},
	{`(\d+)\s*パーセント`, `\1 %`},
	{`(\d+)%`, `\1 %`},
	{`(\d+)％`, `\1 %`},
	{`SpO2\s*(\d+)\s*%`, `SpO2 \1 %`},
}

// FallbackSize is the number of rules in the built-in dictionary
var FallbackSize = len(fallbackRows)

// FallbackRules returns the compiled built-in rule set
func FallbackRules() RuleSet {
	rules := make(RuleSet, 0, len(fallbackRows))
	for _, row := range fallbackRows {
		rule, err := newRule(row.pattern, row.replacement, true, "")
		if err != nil {
			// Fallback patterns are fixed at build time; a failure here is a bug
			panic(fmt.Sprintf("invalid fallback rule %q: %v", row.pattern, err))
		}
		rules = append(rules, rule)
	}
	return rules
}

// LoadDict loads the rule dictionary from a tab-delimited resource.
//
// Each row is pattern<TAB>replacement<TAB>is_regex(0|1)<TAB>[note]. Rows
// beginning with '#' and blank rows are skipped. Malformed rows are skipped
// with a warning and never abort the load. A missing resource or a load that
// yields zero usable rules falls back to the built-in dictionary.
func LoadDict(path string, logger *slog.Logger) RuleSet {
	file, err := os.Open(path)
	if err != nil {
		logger.Warn("Dictionary not found, using built-in fallback",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return FallbackRules()
	}
	defer file.Close()

	var rules RuleSet

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			logger.Warn("Skipped malformed dictionary row",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.Int("fields", len(fields)),
			)
			continue
		}

		var isRegex bool
		switch strings.TrimSpace(fields[2]) {
		case "0":
			isRegex = false
		case "1":
			isRegex = true
		default:
			logger.Warn("Skipped dictionary row with invalid regex flag",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("flag", fields[2]),
			)
			continue
		}

		note := ""
		if len(fields) > 3 {
			note = fields[3]
		}

		rule, err := newRule(fields[0], fields[1], isRegex, note)
		if err != nil {
			logger.Warn("Skipped dictionary row with invalid pattern",
				slog.String("path", path),
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			continue
		}

		rules = append(rules, rule)
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("Dictionary read failed, using built-in fallback",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return FallbackRules()
	}

	if len(rules) == 0 {
		logger.Warn("Dictionary contained no usable rules, using built-in fallback",
			slog.String("path", path),
		)
		return FallbackRules()
	}

	logger.Info("Dictionary loaded",
		slog.String("path", path),
		slog.Int("rules", len(rules)),
	)

	return rules
}
