package bibtex

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Accent commands whose name is a symbol, keyed by combining mark.
var symbolAccents = map[rune]rune{
	'\u0300': '`',
	'\u0301': '\'',
	'\u0302': '^',
	'\u0303': '~',
	'\u0304': '=',
	'\u0307': '.',
	'\u0308': '"',
}

// Accent commands whose name is a letter, keyed by combining mark.
var letterAccents = map[rune]string{
	'\u0306': "u",
	'\u030a': "r",
	'\u030b': "H",
	'\u030c': "v",
	'\u0323': "d",
	'\u0327': "c",
	'\u0328': "k",
	'\u0331': "b",
}

// Letters with their own command.
var specialLetters = map[rune]string{
	'ß': "ss",
	'æ': "ae",
	'Æ': "AE",
	'œ': "oe",
	'Œ': "OE",
	'ø': "o",
	'Ø': "O",
	'ł': "l",
	'Ł': "L",
	'ı': "i",
	'ȷ': "j",
	'å': "aa",
	'Å': "AA",
}

// Text commands producing one character; the trailing "{}" is optional.
var textCommands = map[string]string{
	"textasciitilde":  "~",
	"textasciicircum": "^",
	"textbackslash":   `\`,
	"textbar":         "|",
	"textless":        "<",
	"textgreater":     ">",
	"textendash":      "–",
	"textemdash":      "—",
	"textquotedbl":    `"`,
}

// Font and box commands that are dropped, keeping their argument.
var dropCommands = map[string]bool{
	"emph": true, "textit": true, "textbf": true, "textsc": true, "textrm": true,
	"texttt": true, "textsf": true, "textup": true, "mathrm": true, "mathit": true,
	"mathbf": true, "mbox": true, "it": true, "bf": true, "em": true, "sc": true,
	"rm": true, "tt": true, "sf": true, "url": true, "NoCaseChange": true,
}

var (
	accentBySymbol = invert(symbolAccents)
	accentByLetter = func() map[string]rune {
		m := make(map[string]rune, len(letterAccents))
		for mark, cmd := range letterAccents {
			m[cmd] = mark
		}
		return m
	}()
	letterByCommand = func() map[string]rune {
		m := make(map[string]rune, len(specialLetters))
		for r, cmd := range specialLetters {
			m[cmd] = r
		}
		return m
	}()
)

func invert(in map[rune]rune) map[rune]rune {
	out := make(map[rune]rune, len(in))
	for k, v := range in {
		out[v] = k
	}
	return out
}

// EncodeLaTeX escapes BibTeX specials and rewrites accented letters as
// LaTeX accent commands. Characters with no LaTeX form are kept as UTF-8.
func EncodeLaTeX(s string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(s) {
		switch r {
		case '&', '%', '$', '#', '_', '{', '}':
			b.WriteByte('\\')
			b.WriteRune(r)
			continue
		case '\\':
			b.WriteString(`\textbackslash{}`)
			continue
		case '~':
			b.WriteString(`\textasciitilde{}`)
			continue
		case '^':
			b.WriteString(`\textasciicircum{}`)
			continue
		}
		if r < unicode.MaxASCII {
			b.WriteRune(r)
			continue
		}
		b.WriteString(encodeRune(r))
	}
	return b.String()
}

func encodeRune(r rune) string {
	if cmd, ok := specialLetters[r]; ok {
		return `{\` + cmd + `}`
	}
	parts := []rune(norm.NFD.String(string(r)))
	base, marks := parts[0], parts[1:]
	if base >= unicode.MaxASCII || len(marks) == 0 {
		return string(r)
	}
	inner := string(base)
	for _, mark := range marks {
		if sym, ok := symbolAccents[mark]; ok {
			inner = `\` + string(sym) + wrapArg(inner)
		} else if cmd, ok := letterAccents[mark]; ok {
			inner = `\` + cmd + "{" + inner + "}"
		} else {
			return string(r)
		}
	}
	return "{" + inner + "}"
}

func wrapArg(s string) string {
	if len(s) == 1 {
		return s
	}
	return "{" + s + "}"
}

// DecodeLaTeX turns LaTeX escapes and accent commands back into Unicode and
// drops grouping braces. Unknown commands are kept verbatim.
func DecodeLaTeX(s string) string {
	d := decoder{src: []rune(s)}
	return norm.NFC.String(d.run(false))
}

type decoder struct {
	src []rune
	pos int
}

// run decodes until the end of input, or until the closing brace of the
// current group when inGroup is set.
func (d *decoder) run(inGroup bool) string {
	var b strings.Builder
	for d.pos < len(d.src) {
		r := d.src[d.pos]
		switch r {
		case '{':
			d.pos++
			b.WriteString(d.run(true))
		case '}':
			d.pos++
			if inGroup {
				return b.String()
			}
		case '~':
			d.pos++
			b.WriteByte(' ')
		case '\\':
			d.pos++
			b.WriteString(d.command())
		default:
			d.pos++
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (d *decoder) peek() (rune, bool) {
	if d.pos >= len(d.src) {
		return 0, false
	}
	return d.src[d.pos], true
}

// command decodes one control sequence; the backslash is already consumed.
func (d *decoder) command() string {
	r, ok := d.peek()
	if !ok {
		return `\`
	}

	if mark, ok := accentBySymbol[r]; ok {
		d.pos++
		return applyMark(d.argument(false), mark)
	}
	if !isASCIILetter(r) {
		d.pos++
		switch r {
		case '&', '%', '$', '#', '_', '{', '}', '\\', ' ', ',', '@':
			if r == ',' {
				return " "
			}
			return string(r)
		}
		return `\` + string(r)
	}

	start := d.pos
	for d.pos < len(d.src) && isASCIILetter(d.src[d.pos]) {
		d.pos++
	}
	name := string(d.src[start:d.pos])

	if mark, ok := accentByLetter[name]; ok {
		return applyMark(d.argument(true), mark)
	}
	if letter, ok := letterByCommand[name]; ok {
		d.skipEmptyGroup()
		return string(letter)
	}
	if text, ok := textCommands[name]; ok {
		d.skipEmptyGroup()
		return text
	}
	if dropCommands[name] {
		if r, ok := d.peek(); ok && r == ' ' {
			d.pos++
		}
		return ""
	}
	return `\` + name
}

// argument reads a braced group or a single character. Letter commands
// allow whitespace before a bare argument.
func (d *decoder) argument(skipSpace bool) string {
	if skipSpace {
		for d.pos < len(d.src) && d.src[d.pos] == ' ' {
			d.pos++
		}
	}
	r, ok := d.peek()
	if !ok {
		return ""
	}
	switch r {
	case '{':
		d.pos++
		return d.run(true)
	case '\\':
		d.pos++
		return d.command()
	}
	d.pos++
	return string(r)
}

func (d *decoder) skipEmptyGroup() {
	if d.pos+1 < len(d.src) && d.src[d.pos] == '{' && d.src[d.pos+1] == '}' {
		d.pos += 2
		return
	}
	if d.pos < len(d.src) && d.src[d.pos] == ' ' {
		d.pos++
	}
}

// applyMark attaches a combining mark to the first character of base.
func applyMark(base string, mark rune) string {
	runes := []rune(base)
	if len(runes) == 0 {
		return string(mark)
	}
	switch runes[0] {
	case 'ı':
		runes[0] = 'i'
	case 'ȷ':
		runes[0] = 'j'
	}
	out := append([]rune{runes[0], mark}, runes[1:]...)
	return norm.NFC.String(string(out))
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
