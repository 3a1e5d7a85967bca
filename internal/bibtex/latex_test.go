package bibtex

import "testing"

func TestEncodeLaTeX(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain title", "plain title"},
		{"Gödel", `G{\"o}del`},
		{"Erdős", `Erd{\H{o}}s`},
		{"Façade", `Fa{\c{c}}ade`},
		{"Straße", `Stra{\ss}e`},
		{"Ørsted", `{\O}rsted`},
		{"naïve", `na{\"i}ve`},
		{"R&D at 50%", `R\&D at 50\%`},
		{"a_b #1 $5", `a\_b \#1 \$5`},
		{"x~y^z", `x\textasciitilde{}y\textasciicircum{}z`},
		{"日本語", "日本語"},
	}
	for _, tt := range tests {
		if got := EncodeLaTeX(tt.in); got != tt.want {
			t.Errorf("EncodeLaTeX(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeLaTeX(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`G{\"o}del`, "Gödel"},
		{`G\"odel`, "Gödel"},
		{`G\"{o}del`, "Gödel"},
		{`Erd\H{o}s`, "Erdős"},
		{`Fa\c cade`, "Façade"},
		{`{\'\i}`, "í"},
		{`\'{\i}`, "í"},
		{`Stra\ss e`, "Straße"},
		{`{DNA} repair`, "DNA repair"},
		{`50\% of R\&D`, "50% of R&D"},
		{`\emph{very} good`, "very good"},
		{`a~b`, "a b"},
		{`\textasciitilde{}`, "~"},
		{`\v{S}koda`, "Škoda"},
	}
	for _, tt := range tests {
		if got := DecodeLaTeX(tt.in); got != tt.want {
			t.Errorf("DecodeLaTeX(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLaTeXRoundTrip(t *testing.T) {
	inputs := []string{
		"Gödel, Escher, Bach",
		"Ångström & Müller {braces} 100%",
		`back\slash ~tilde^caret`,
		"ǘ stacked marks",
		"Łódź and Ærø",
		"çon",
	}
	for _, s := range inputs {
		if got := DecodeLaTeX(EncodeLaTeX(s)); got != s {
			t.Errorf("DecodeLaTeX(EncodeLaTeX(%q)) = %q", s, got)
		}
	}
}
