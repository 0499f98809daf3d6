package recognizer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAlphabet(t *testing.T) {
	a, err := NewAlphabet("abc")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 4, a.NumLabels())
	assert.Equal(t, "abc", a.String())

	l, ok := a.Encode('b')
	assert.True(t, ok)
	assert.Equal(t, 2, l)
	_, ok = a.Encode('z')
	assert.False(t, ok)

	r, ok := a.Decode(3)
	assert.True(t, ok)
	assert.Equal(t, 'c', r)
	_, ok = a.Decode(BlankLabel)
	assert.False(t, ok)
	_, ok = a.Decode(4)
	assert.False(t, ok)
}

func TestNewAlphabet_Errors(t *testing.T) {
	_, err := NewAlphabet("")
	require.Error(t, err)
	_, err = NewAlphabet("a\xffb")
	require.ErrorContains(t, err, "UTF-8")
}

func TestNewAlphabet_Duplicates(t *testing.T) {
	a, err := NewAlphabet("abca")
	require.NoError(t, err)
	assert.Equal(t, 5, a.NumLabels())

	l, ok := a.Encode('a')
	require.True(t, ok)
	assert.Equal(t, 1, l)
	r, ok := a.Decode(4)
	require.True(t, ok)
	assert.Equal(t, 'a', r)
}

func TestNewAlphabet_KeepsCombiningMarks(t *testing.T) {
	a, err := NewAlphabet("e\u0301x")
	require.NoError(t, err)
	assert.Equal(t, 3, a.Len())
	assert.Equal(t, 4, a.NumLabels())

	r, ok := a.Decode(2)
	require.True(t, ok)
	assert.Equal(t, '\u0301', r)
	r, ok = a.Decode(3)
	require.True(t, ok)
	assert.Equal(t, 'x', r)
}

func TestDefaultAlphabet(t *testing.T) {
	a := MustAlphabet(DefaultAlphabet)
	assert.Equal(t, 97, a.NumLabels())
	l, ok := a.Encode(' ')
	require.True(t, ok)
	assert.Equal(t, 1, l)

	// "E" follows "~" and appears again among the capitals.
	l, ok = a.Encode('E')
	require.True(t, ok)
	assert.Equal(t, 44, l)
	r, ok := a.Decode(49)
	require.True(t, ok)
	assert.Equal(t, 'E', r)
	r, ok = a.Decode(45)
	require.True(t, ok)
	assert.Equal(t, 'A', r)
}

func TestLoadAlphabet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alphabet.txt")
	content := "\uFEFFa\r\n \nb\n\n  c  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	a, err := LoadAlphabet(path)
	require.NoError(t, err)
	assert.Equal(t, "a bc", a.String())
}

func TestLoadAlphabet_CombiningMarkLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alphabet.txt")
	require.NoError(t, os.WriteFile(path, []byte("e\n\u0301\nx\n"), 0o600))

	a, err := LoadAlphabet(path)
	require.NoError(t, err)
	assert.Equal(t, 4, a.NumLabels())
	assert.Equal(t, "e\u0301x", a.String())

	decomposed := filepath.Join(t.TempDir(), "decomposed.txt")
	require.NoError(t, os.WriteFile(decomposed, []byte("e\u0301\n"), 0o600))
	_, err = LoadAlphabet(decomposed)
	require.ErrorContains(t, err, "line 1")
}

func TestLoadAlphabet_Errors(t *testing.T) {
	_, err := LoadAlphabet("")
	require.Error(t, err)

	_, err = LoadAlphabet(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)

	empty := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o600))
	_, err = LoadAlphabet(empty)
	require.ErrorContains(t, err, "empty")

	multi := filepath.Join(t.TempDir(), "multi.txt")
	require.NoError(t, os.WriteFile(multi, []byte("ab\n"), 0o600))
	_, err = LoadAlphabet(multi)
	require.ErrorContains(t, err, "line 1")
}

func TestExcludedLabels(t *testing.T) {
	a := MustAlphabet("abcd")

	assert.Equal(t, 0, a.ExcludedLabels("").Len())

	ex := a.ExcludedLabels("bd")
	assert.Equal(t, []int{1, 3}, ex.Labels())
	assert.True(t, ex.Contains(1))
	assert.False(t, ex.Contains(2))
	assert.False(t, ex.Contains(BlankLabel))

	// Characters outside the alphabet are ignored.
	assert.Equal(t, []int{1, 2, 3, 4}, a.ExcludedLabels("xyz").Labels())
}

func TestExcludedLabels_NormalisesAllowed(t *testing.T) {
	a := MustAlphabet("e\u00e9")
	// Decomposed e + combining acute composes to é.
	ex := a.ExcludedLabels("e\u0301")
	assert.Equal(t, []int{1}, ex.Labels())
}

func TestNewLabelSet(t *testing.T) {
	s := NewLabelSet(3, 0, -1, 3, 1)
	assert.Equal(t, []int{1, 3}, s.Labels())
	assert.Equal(t, 2, s.Len())
}
