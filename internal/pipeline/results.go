package pipeline

import (
	"math"

	"github.com/MeKo-Tech/linocr/internal/recognizer"
	"github.com/MeKo-Tech/linocr/internal/utils"
)

// Box is a rectangle's corners in TL, TR, BR, BL order.
type Box [4][2]float64

// BoxOf returns the corners of r rounded to two decimals.
func BoxOf(r utils.RotatedRect) Box {
	var b Box
	for i, c := range r.Corners() {
		b[i] = [2]float64{round2(c.X), round2(c.Y)}
	}
	return b
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// WordResult is the JSON form of a recognised word.
type WordResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// LineResult is the JSON form of a recognised line.
type LineResult struct {
	Index      int          `json:"index"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Box        Box          `json:"box"`
	Words      []WordResult `json:"words"`
}

// DetectionResult is the JSON form of detected words and their lines.
type DetectionResult struct {
	Threshold float32 `json:"threshold"`
	Words     []Box   `json:"words"`
	Lines     [][]Box `json:"lines"`
}

// LineResults converts recognised lines, skipping lines without text.
// Index keeps the position in the GetTextLines result.
func LineResults(lines []*recognizer.TextLine) []LineResult {
	out := make([]LineResult, 0, len(lines))
	for i, l := range lines {
		if l == nil {
			continue
		}
		lr := LineResult{
			Index:      i,
			Text:       l.String(),
			Confidence: round2(l.Confidence()),
			Box:        BoxOf(l.Rect),
		}
		for _, w := range l.Words {
			if w.Text == "" {
				continue
			}
			lr.Words = append(lr.Words, WordResult{Text: w.Text, Confidence: round2(w.Confidence()), Box: BoxOf(w.Rect)})
		}
		out = append(out, lr)
	}
	return out
}

// NewDetectionResult converts detected words and the lines built from them.
func NewDetectionResult(threshold float32, words []utils.RotatedRect, lines [][]utils.RotatedRect) DetectionResult {
	res := DetectionResult{Threshold: threshold, Words: make([]Box, 0, len(words)), Lines: make([][]Box, 0, len(lines))}
	for _, w := range words {
		res.Words = append(res.Words, BoxOf(w))
	}
	for _, l := range lines {
		boxes := make([]Box, len(l))
		for i, w := range l {
			boxes[i] = BoxOf(w)
		}
		res.Lines = append(res.Lines, boxes)
	}
	return res
}
