package recognizer

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// DecodeMethod selects the CTC decoding strategy.
type DecodeMethod string

const (
	// Greedy takes the best label at every step.
	Greedy DecodeMethod = "greedy"
	// BeamSearch runs CTC prefix beam search.
	BeamSearch DecodeMethod = "beam"
)

// DefaultBeamWidth is the number of prefixes kept by BeamSearch.
const DefaultBeamWidth = 10

// ParseDecodeMethod parses "greedy" or "beam".
func ParseDecodeMethod(s string) (DecodeMethod, error) {
	switch m := DecodeMethod(strings.ToLower(strings.TrimSpace(s))); m {
	case "", Greedy:
		return Greedy, nil
	case BeamSearch, "beamsearch", "beam_search":
		return BeamSearch, nil
	default:
		return "", fmt.Errorf("unknown decode method %q", s)
	}
}

// ScoreSequence is a [Steps, Classes] row-major matrix of per-step label
// scores, either probabilities or natural-log probabilities.
type ScoreSequence struct {
	Data     []float32
	Steps    int
	Classes  int
	LogProbs bool
}

// DecodedChar is one output character and the steps it was read from.
type DecodedChar struct {
	Label int
	Char  rune
	// Start and End delimit the half-open step interval [Start, End).
	Start int
	End   int
	// Confidence is the mean probability of Label over the interval.
	Confidence float64
}

// Decoded is the result of decoding a ScoreSequence.
type Decoded struct {
	Text  string
	Chars []DecodedChar
	// LogProb is the log-likelihood of the decoding: the best path for
	// greedy decoding, the prefix score for beam search.
	LogProb float64
}

// DecodeOptions tunes Decode.
type DecodeOptions struct {
	Method    DecodeMethod
	BeamWidth int
}

// Decode turns per-step label scores into text. Excluded labels are never
// emitted. seq.Classes must equal alphabet.NumLabels().
func Decode(seq ScoreSequence, alphabet Alphabet, excluded LabelSet, method DecodeMethod) Decoded {
	return DecodeWith(seq, alphabet, excluded, DecodeOptions{Method: method, BeamWidth: DefaultBeamWidth})
}

// DecodeWith is Decode with an explicit beam width.
func DecodeWith(seq ScoreSequence, alphabet Alphabet, excluded LabelSet, opts DecodeOptions) Decoded {
	if seq.Classes != alphabet.NumLabels() {
		panic(fmt.Sprintf("recognizer: sequence has %d classes, alphabet has %d labels", seq.Classes, alphabet.NumLabels()))
	}
	if len(seq.Data) < seq.Steps*seq.Classes {
		panic(fmt.Sprintf("recognizer: sequence data has %d values, want %d", len(seq.Data), seq.Steps*seq.Classes))
	}
	lp := logScores(seq, excluded)

	var labels []int
	var spans [][2]int
	var score float64
	if opts.Method == BeamSearch {
		labels, spans, score = beamSearch(lp, seq.Steps, seq.Classes, max(opts.BeamWidth, 1))
	} else {
		labels, spans, score = greedy(lp, seq.Steps, seq.Classes)
	}

	out := Decoded{LogProb: score, Chars: make([]DecodedChar, 0, len(labels))}
	var sb strings.Builder
	for i, l := range labels {
		r, _ := alphabet.Decode(l)
		sb.WriteRune(r)
		start, end := spans[i][0], spans[i][1]
		var sum float64
		for t := start; t < end; t++ {
			sum += math.Exp(lp[t*seq.Classes+l])
		}
		out.Chars = append(out.Chars, DecodedChar{
			Label:      l,
			Char:       r,
			Start:      start,
			End:        end,
			Confidence: sum / float64(end-start),
		})
	}
	out.Text = sb.String()
	return out
}

// logScores converts seq to float64 log probabilities with excluded labels
// at -Inf.
func logScores(seq ScoreSequence, excluded LabelSet) []float64 {
	n := seq.Steps * seq.Classes
	lp := make([]float64, n)
	for i, v := range seq.Data[:n] {
		switch {
		case excluded.Contains(i % seq.Classes):
			lp[i] = math.Inf(-1)
		case seq.LogProbs:
			lp[i] = float64(v)
		case v > 0:
			lp[i] = math.Log(float64(v))
		default:
			lp[i] = math.Inf(-1)
		}
	}
	return lp
}

// argmax returns the index of the largest value; ties go to the lowest index.
func argmax(row []float64) int {
	best := 0
	for i := 1; i < len(row); i++ {
		if row[i] > row[best] {
			best = i
		}
	}
	return best
}

// greedy picks the best label per step, merges runs and drops blanks.
func greedy(lp []float64, steps, classes int) ([]int, [][2]int, float64) {
	var labels []int
	var spans [][2]int
	var score float64
	prev := BlankLabel
	for t := range steps {
		row := lp[t*classes : (t+1)*classes]
		l := argmax(row)
		score += row[l]
		switch {
		case l == BlankLabel:
		case l == prev:
			spans[len(spans)-1][1] = t + 1
		default:
			labels = append(labels, l)
			spans = append(spans, [2]int{t, t + 1})
		}
		prev = l
	}
	return labels, spans, score
}

// beam is one prefix in CTC prefix beam search. blank and nonBlank are the
// log probabilities of all paths producing the prefix that end in a blank
// or in its last label.
type beam struct {
	labels   []int
	spans    [][2]int
	blank    float64
	nonBlank float64
	// best is the score of the contribution spans was taken from.
	best float64
	k    string
}

func (b *beam) total() float64 { return logAdd(b.blank, b.nonBlank) }

func labelKey(labels []int) string {
	var sb strings.Builder
	for _, l := range labels {
		sb.WriteString(strconv.Itoa(l))
		sb.WriteByte(',')
	}
	return sb.String()
}

func (b *beam) last() int {
	if len(b.labels) == 0 {
		return BlankLabel
	}
	return b.labels[len(b.labels)-1]
}

// logAdd returns log(exp(a) + exp(b)).
func logAdd(a, b float64) float64 {
	if math.IsInf(a, -1) {
		return b
	}
	if math.IsInf(b, -1) {
		return a
	}
	if a < b {
		a, b = b, a
	}
	return a + math.Log1p(math.Exp(b-a))
}

type beamSet struct {
	byKey map[string]*beam
	order []*beam
}

func newBeamSet(n int) *beamSet {
	return &beamSet{byKey: make(map[string]*beam, n)}
}

// add merges a path contribution into the prefix labels. spans is adopted
// when contrib is the strongest contribution seen so far.
func (s *beamSet) add(labels []int, spans [][2]int, blank, nonBlank float64) {
	k := labelKey(labels)
	contrib := logAdd(blank, nonBlank)
	b, ok := s.byKey[k]
	if !ok {
		negInf := math.Inf(-1)
		b = &beam{labels: labels, spans: spans, blank: negInf, nonBlank: negInf, best: negInf, k: k}
		s.byKey[k] = b
		s.order = append(s.order, b)
	}
	b.blank = logAdd(b.blank, blank)
	b.nonBlank = logAdd(b.nonBlank, nonBlank)
	if contrib > b.best {
		b.best = contrib
		b.spans = spans
	}
}

// top returns the n best prefixes by total score, ties broken by key.
func (s *beamSet) top(n int) []*beam {
	slices.SortStableFunc(s.order, func(a, b *beam) int {
		if c := cmp.Compare(b.total(), a.total()); c != 0 {
			return c
		}
		return strings.Compare(a.k, b.k)
	})
	if len(s.order) > n {
		return s.order[:n]
	}
	return s.order
}

// beamSearch runs CTC prefix beam search keeping width prefixes per step.
func beamSearch(lp []float64, steps, classes, width int) ([]int, [][2]int, float64) {
	negInf := math.Inf(-1)
	beams := []*beam{{blank: 0, nonBlank: negInf}}

	for t := range steps {
		row := lp[t*classes : (t+1)*classes]
		next := newBeamSet(width * classes)
		for _, b := range beams {
			total := b.total()
			last := b.last()

			// Blank keeps the prefix.
			if p := row[BlankLabel]; !math.IsInf(p, -1) {
				next.add(b.labels, b.spans, total+p, negInf)
			}

			for c := 1; c < classes; c++ {
				p := row[c]
				if math.IsInf(p, -1) {
					continue
				}
				if c == last {
					// Repeat without a blank extends the last character.
					spans := slices.Clone(b.spans)
					spans[len(spans)-1][1] = t + 1
					next.add(b.labels, spans, negInf, b.nonBlank+p)
					// A new copy needs a blank in between.
					if !math.IsInf(b.blank, -1) {
						next.add(appendLabel(b.labels, c), appendSpan(b.spans, t), negInf, b.blank+p)
					}
					continue
				}
				next.add(appendLabel(b.labels, c), appendSpan(b.spans, t), negInf, total+p)
			}
		}
		if len(next.order) == 0 {
			return nil, nil, negInf
		}
		beams = next.top(width)
	}

	best := beams[0]
	return best.labels, best.spans, best.total()
}

func appendLabel(labels []int, l int) []int {
	out := make([]int, len(labels)+1)
	copy(out, labels)
	out[len(labels)] = l
	return out
}

func appendSpan(spans [][2]int, t int) [][2]int {
	out := make([][2]int, len(spans)+1)
	copy(out, spans)
	out[len(spans)] = [2]int{t, t + 1}
	return out
}
