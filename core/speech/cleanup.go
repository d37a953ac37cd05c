package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxRequestLength is the longest text handed to an engine in one request.
const maxRequestLength = 3999

var symbolNames = map[string]string{
	"&":      "ampersand",
	"<":      "left angle bracket",
	">":      "right angle bracket",
	"'":      "apostrophe",
	"*":      "star",
	"@":      "at",
	"\\":     "backslash",
	"•":      "bullet",
	"^":      "caret",
	"¢":      "cent",
	":":      "colon",
	",":      "comma",
	"©":      "copyright",
	"{":      "left brace",
	"}":      "right brace",
	"°":      "degree",
	"$":      "dollar",
	"…":      "ellipsis",
	"\u2014": "em dash",
	"\u2013": "en dash",
	"€":      "euro",
	"!":      "exclamation",
	"`":      "grave accent",
	"-":      "dash",
	"„":      "low double quote",
	"¶":      "paragraph mark",
	"(":      "left paren",
	")":      "right paren",
	"%":      "percent",
	".":      "period",
	"π":      "pi",
	"#":      "pound",
	"£":      "pound sterling",
	"?":      "question mark",
	"\"":     "quote",
	"®":      "registered trademark",
	";":      "semicolon",
	"/":      "slash",
	" ":      "space",
	"[":      "left bracket",
	"]":      "right bracket",
	"√":      "square root",
	"™":      "trademark",
	"_":      "underline",
	"|":      "vertical bar",
	"\n":     "new line",
}

// cleanUpSymbol names a single character so that engines do not skip it.
// Anything longer than one character is returned unchanged.
func cleanUpSymbol(text string) string {
	if utf8.RuneCountInString(text) != 1 {
		return text
	}
	if name, ok := symbolNames[text]; ok {
		return name
	}

	r, _ := utf8.DecodeRuneInString(text)
	if unicode.IsUpper(r) {
		return "capital " + text
	}
	return text
}

// spellOut names every character of text, one after the other.
func spellOut(text string) string {
	names := make([]string, 0, utf8.RuneCountInString(text))
	for _, r := range text {
		names = append(names, cleanUpSymbol(string(r)))
	}
	return strings.Join(names, ", ")
}

// splitLongText breaks text into pieces no longer than maxRequestLength
// runes, preferring the last space before the limit.
func splitLongText(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxRequestLength {
		return []string{text}
	}

	var pieces []string
	for start := 0; start < len(runes); {
		end := min(start+maxRequestLength, len(runes))
		if end == len(runes) {
			pieces = append(pieces, string(runes[start:end]))
			break
		}

		split := -1
		for i := end; i > start; i-- {
			if runes[i] == ' ' {
				split = i
				break
			}
		}
		if split < 0 {
			pieces = append(pieces, string(runes[start:end]))
			start = end
			continue
		}

		pieces = append(pieces, string(runes[start:split]))
		start = split + 1
	}
	return pieces
}
