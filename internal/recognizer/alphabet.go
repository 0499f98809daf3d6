package recognizer

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultAlphabet is the character set of the stock recognition model. The
// model was trained with a second "E" after "~"; it decodes as "E" too.
const DefaultAlphabet = " 0123456789!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~E" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// BlankLabel is the CTC label for "no character".
const BlankLabel = 0

// Alphabet maps characters to recognition labels. Label 0 is the blank
// label, label i+1 is the i-th rune exactly as given. A character listed
// more than once decodes from every position and encodes to the first.
type Alphabet struct {
	chars []rune
	index map[rune]int
}

// NewAlphabet builds an alphabet from the runes of s in order. s is not
// normalised: combining marks keep their own labels.
func NewAlphabet(s string) (Alphabet, error) {
	if s == "" {
		return Alphabet{}, errors.New("alphabet is empty")
	}
	if !utf8.ValidString(s) {
		return Alphabet{}, errors.New("alphabet is not valid UTF-8")
	}
	chars := []rune(s)
	index := make(map[rune]int, len(chars))
	for i, r := range chars {
		if _, seen := index[r]; !seen {
			index[r] = i + 1
		}
	}
	return Alphabet{chars: chars, index: index}, nil
}

// MustAlphabet is NewAlphabet for constant inputs.
func MustAlphabet(s string) Alphabet {
	a, err := NewAlphabet(s)
	if err != nil {
		panic(err)
	}
	return a
}

// LoadAlphabet reads an alphabet file with one rune per line.
// A UTF-8 BOM on the first line is removed, empty lines are skipped
// and a line holding a single space is the space character.
func LoadAlphabet(path string) (Alphabet, error) {
	if path == "" {
		return Alphabet{}, errors.New("alphabet path cannot be empty")
	}
	f, err := os.Open(path) //nolint:gosec // G304: user-provided alphabet file
	if err != nil {
		return Alphabet{}, fmt.Errorf("failed to open alphabet: %w", err)
	}
	defer func() { _ = f.Close() }()

	var sb strings.Builder
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimRight(scanner.Text(), "\r")
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\uFEFF")
		}
		if line != " " {
			line = strings.TrimSpace(line)
		}
		if line == "" {
			continue
		}
		if n := utf8.RuneCountInString(line); n != 1 {
			return Alphabet{}, fmt.Errorf("alphabet line %d: expected one character, got %d", lineNum, n)
		}
		sb.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return Alphabet{}, fmt.Errorf("failed reading alphabet: %w", err)
	}
	if sb.Len() == 0 {
		return Alphabet{}, fmt.Errorf("alphabet is empty: %s", path)
	}
	return NewAlphabet(sb.String())
}

// Len returns the number of characters.
func (a Alphabet) Len() int { return len(a.chars) }

// NumLabels returns the size of the label space including the blank.
func (a Alphabet) NumLabels() int { return len(a.chars) + 1 }

// String returns the characters in label order.
func (a Alphabet) String() string { return string(a.chars) }

// Encode returns the first label of r.
func (a Alphabet) Encode(r rune) (int, bool) {
	l, ok := a.index[r]
	return l, ok
}

// Decode returns the character of a label. The blank label has none.
func (a Alphabet) Decode(label int) (rune, bool) {
	if label <= BlankLabel || label > len(a.chars) {
		return 0, false
	}
	return a.chars[label-1], true
}

// ExcludedLabels returns the labels of every character not in allowed.
// An empty allowed string excludes nothing.
func (a Alphabet) ExcludedLabels(allowed string) LabelSet {
	if allowed == "" {
		return LabelSet{}
	}
	keep := make(map[rune]bool)
	for _, r := range norm.NFC.String(allowed) {
		keep[r] = true
	}
	var labels []int
	for i, r := range a.chars {
		if !keep[r] {
			labels = append(labels, i+1)
		}
	}
	return NewLabelSet(labels...)
}

// LabelSet is an immutable set of non-blank labels.
type LabelSet struct {
	labels []int
}

// NewLabelSet builds a set from labels. The blank label and negative
// values are ignored.
func NewLabelSet(labels ...int) LabelSet {
	out := make([]int, 0, len(labels))
	for _, l := range labels {
		if l > BlankLabel {
			out = append(out, l)
		}
	}
	slices.Sort(out)
	return LabelSet{labels: slices.Compact(out)}
}

// Contains reports whether label is in the set.
func (s LabelSet) Contains(label int) bool {
	_, ok := slices.BinarySearch(s.labels, label)
	return ok
}

// Len returns the number of labels.
func (s LabelSet) Len() int { return len(s.labels) }

// Labels returns a copy of the labels in ascending order.
func (s LabelSet) Labels() []int { return slices.Clone(s.labels) }
