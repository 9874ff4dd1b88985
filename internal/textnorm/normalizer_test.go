package textnorm

import (
	"strings"
	"testing"
)

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return NewNormalizer(FallbackRules())
}

func TestNormalize(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "saturation mishearing",
			in:   "スポ2 95%",
			want: "SpO2 95 %",
		},
		{
			name: "blood pressure reading",
			in:   "142の86",
			want: "142/86",
		},
		{
			name: "unit comma before following clause",
			in:   "スポ2 95%です",
			want: "SpO2 95 %、です",
		},
		{
			name: "mmhg spacing",
			in:   "血圧は95mmHgです",
			want: "血圧は 95 mmHg です",
		},
		{
			name: "script boundary spacing",
			in:   "血圧ABC",
			want: "血圧 ABC",
		},
		{
			name: "reverse script boundary",
			in:   "ABC血圧",
			want: "ABC 血圧",
		},
		{
			name: "elongation run collapsed",
			in:   "そうですねーーー",
			want: "そうですねー",
		},
		{
			name: "ideographic space folded",
			in:   "検査　結果",
			want: "検査 結果",
		},
		{
			name: "whitespace collapsed and trimmed",
			in:   "  検査   結果  ",
			want: "検査 結果",
		},
		{
			name: "empty input",
			in:   "",
			want: "",
		},
		{
			name: "whitespace only",
			in:   "   ",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeTermination(t *testing.T) {
	n := newTestNormalizer(t)

	t.Run("long sentence gets a period", func(t *testing.T) {
		in := strings.Repeat("あ", 31)
		want := in + "。"

		if got := n.Normalize(in); got != want {
			t.Errorf("Expected appended period, got %q", got)
		}
	})

	t.Run("short sentence left alone", func(t *testing.T) {
		in := strings.Repeat("あ", 30)

		if got := n.Normalize(in); got != in {
			t.Errorf("Expected no period on a 30-rune line, got %q", got)
		}
	})

	t.Run("existing terminal mark suppresses period", func(t *testing.T) {
		// Full-width ！ and ？ are width-folded before the termination
		// check, so both widths must suppress the appended period
		for _, mark := range []string{"。", "！", "？", "!", "?"} {
			in := strings.Repeat("あ", 31) + mark

			got := n.Normalize(in)
			if strings.HasSuffix(got, "。") && mark != "。" {
				t.Errorf("Period appended after %q: %q", mark, got)
			}
		}
	})
}

func TestNormalizeCanonicalOutputIsStable(t *testing.T) {
	n := newTestNormalizer(t)

	// Canonical value-unit output survives a second pass unchanged
	for _, in := range []string{"SpO2 95 %", "142/86", "CRP 12.3 mg/dL"} {
		once := n.Normalize(in)
		twice := n.Normalize(once)

		if once != twice {
			t.Errorf("Normalize not stable on %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeNeverPanicsOnOddInput(t *testing.T) {
	n := newTestNormalizer(t)

	inputs := []string{
		"\x00",
		"％％％",
		"ーーーーーー",
		strings.Repeat("9%", 100),
		"mg/dLmg/dLmg/dL",
	}

	for _, in := range inputs {
		// Output content is unspecified for garbage; it just must not panic
		// and must not contain whitespace runs
		got := n.Normalize(in)
		if strings.Contains(got, "  ") {
			t.Errorf("Whitespace run survived in %q", got)
		}
	}
}
