package pipeline

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/recognizer"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// KeywordMatch is one occurrence of a keyword in recognised text.
type KeywordMatch struct {
	Keyword string `json:"keyword"`
	// Line is the index of the line in the GetTextLines result.
	Line int `json:"line"`
	// Word is the index of the word in the line, or -1 when the keyword
	// spans several words.
	Word int               `json:"word"`
	Text string            `json:"text"`
	Rect utils.RotatedRect `json:"rect"`
}

// FindKeywords recognises img and returns every word containing one of the
// keywords, compared case-insensitively. Keywords with spaces are matched
// against whole lines.
func (e *Engine) FindKeywords(ctx context.Context, img *imagesrc.NormalizedImage, keywords []string) ([]KeywordMatch, error) {
	lines, err := e.GetTextLines(ctx, img)
	if err != nil {
		return nil, err
	}
	return MatchKeywords(lines, keywords), nil
}

// MatchKeywords searches recognised lines for keywords.
func MatchKeywords(lines []*recognizer.TextLine, keywords []string) []KeywordMatch {
	fold := cases.Fold()
	folded := make([]string, len(keywords))
	for i, k := range keywords {
		folded[i] = fold.String(strings.TrimSpace(k))
	}

	var matches []KeywordMatch
	for li, line := range lines {
		if line == nil {
			continue
		}
		lineText := fold.String(line.String())
		for ki, k := range folded {
			if k == "" {
				continue
			}
			if strings.Contains(k, " ") {
				if strings.Contains(lineText, k) {
					matches = append(matches, KeywordMatch{
						Keyword: keywords[ki], Line: li, Word: -1, Text: line.String(), Rect: line.Rect,
					})
				}
				continue
			}
			for wi, w := range line.Words {
				if w.Text != "" && strings.Contains(fold.String(w.Text), k) {
					matches = append(matches, KeywordMatch{
						Keyword: keywords[ki], Line: li, Word: wi, Text: w.Text, Rect: w.Rect,
					})
				}
			}
		}
	}
	return matches
}
