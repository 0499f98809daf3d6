package recognizer

import (
	"strings"

	"github.com/MeKo-Tech/linocr/internal/utils"
)

// TextChar is a recognised character and the part of the line it came from.
type TextChar struct {
	Char       rune              `json:"char"`
	Rect       utils.RotatedRect `json:"rect"`
	Confidence float64           `json:"confidence"`
}

// TextWord is a detected word and the characters recognised inside it.
type TextWord struct {
	Text  string            `json:"text"`
	Rect  utils.RotatedRect `json:"rect"`
	Chars []TextChar        `json:"chars,omitempty"`
}

// Confidence returns the mean character confidence, or 0 for an empty word.
func (w TextWord) Confidence() float64 {
	if len(w.Chars) == 0 {
		return 0
	}
	var sum float64
	for _, c := range w.Chars {
		sum += c.Confidence
	}
	return sum / float64(len(w.Chars))
}

// TextLine is a recognised line of words in reading order.
type TextLine struct {
	Words []TextWord        `json:"words"`
	Rect  utils.RotatedRect `json:"rect"`
}

// String joins the non-empty words with single spaces.
func (l *TextLine) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, len(l.Words))
	for _, w := range l.Words {
		if w.Text != "" {
			parts = append(parts, w.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Chars returns all characters of the line in order.
func (l *TextLine) Chars() []TextChar {
	if l == nil {
		return nil
	}
	var out []TextChar
	for _, w := range l.Words {
		out = append(out, w.Chars...)
	}
	return out
}

// Confidence returns the mean character confidence of the line.
func (l *TextLine) Confidence() float64 {
	chars := l.Chars()
	if len(chars) == 0 {
		return 0
	}
	var sum float64
	for _, c := range chars {
		sum += c.Confidence
	}
	return sum / float64(len(chars))
}

// trimSpaceChars drops space characters at both ends of chars.
func trimSpaceChars(chars []TextChar) []TextChar {
	start, end := 0, len(chars)
	for start < end && isSpace(chars[start].Char) {
		start++
	}
	for end > start && isSpace(chars[end-1].Char) {
		end--
	}
	return chars[start:end]
}

func isSpace(r rune) bool { return r == ' ' || r == '\t' }

func charsText(chars []TextChar) string {
	var sb strings.Builder
	for _, c := range chars {
		sb.WriteRune(c.Char)
	}
	return sb.String()
}
