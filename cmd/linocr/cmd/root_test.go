package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/linocr/internal/config"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
	"github.com/MeKo-Tech/linocr/internal/testutil"
)

// fakeEngine builds an engine on stand-in models that read every bright
// block as the first alphabet character.
func fakeEngine(cfg *config.Config) (*pipeline.Engine, error) {
	pc, err := cfg.ToPipelineConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.NewEngine(pc,
		testutil.FakeDetectionModel([]int64{1, 1, -1, -1}),
		testutil.FakeRecognitionModel(4, 1))
}

// isolate runs the test in an empty directory with no config files in reach.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("LINOCR_MODELS_DIR", "")
	t.Chdir(dir)
	return dir
}

func run(t *testing.T, factory engineFactory, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(factory)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// threeWords writes a 200x100 image with three word blocks on one line.
func threeWords(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	img := testutil.BlocksImage(200, 100,
		image.Rect(0, 30, 50, 50),
		image.Rect(70, 30, 120, 50),
		image.Rect(140, 30, 190, 50),
	)
	require.NoError(t, imgio.Save(path, img, imgio.PNGEncoder()))
	return path
}

func TestRootCommand(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "linocr", root.Use)
	assert.NotEmpty(t, root.Short)

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"text", "lines", "detect", "find", "serve", "config"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"det-model", "rec-model", "alphabet", "decode-method", "threshold", "debug-dir"} {
		assert.NotNil(t, root.PersistentFlags().Lookup(flag), flag)
	}
}

func TestRootCommandHelp(t *testing.T) {
	isolate(t)
	out, err := run(t, fakeEngine, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "Available Commands:")
}

func TestText(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")

	out, err := run(t, fakeEngine, "text", "--alphabet", "abc", img)
	require.NoError(t, err)
	assert.Equal(t, "a a a\n", out)
}

func TestText_MultipleFilesAndOutput(t *testing.T) {
	dir := isolate(t)
	one := threeWords(t, dir, "one.png")
	two := threeWords(t, dir, "two.png")
	outFile := filepath.Join(dir, "out.txt")

	out, err := run(t, fakeEngine, "text", "--alphabet", "abc", "-o", outFile, one, two)
	require.NoError(t, err)
	assert.Empty(t, out)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "==> "+one+" <==\na a a\n==> "+two+" <==\na a a\n", string(data))
}

func TestText_Directory(t *testing.T) {
	dir := isolate(t)
	scans := filepath.Join(dir, "scans")
	require.NoError(t, os.MkdirAll(filepath.Join(scans, "sub"), 0o750))
	one := threeWords(t, scans, "one.png")
	two := threeWords(t, scans, "two.png")
	three := threeWords(t, filepath.Join(scans, "sub"), "three.png")
	require.NoError(t, os.WriteFile(filepath.Join(scans, "notes.txt"), []byte("x"), 0o600))

	out, err := run(t, fakeEngine, "text", "--alphabet", "abc", "-j", "2", scans)
	require.NoError(t, err)
	assert.Equal(t, "==> "+one+" <==\na a a\n==> "+two+" <==\na a a\n", out)

	out, err = run(t, fakeEngine, "text", "--alphabet", "abc", "-r", "--exclude", "two.*", scans)
	require.NoError(t, err)
	assert.Equal(t, "==> "+one+" <==\na a a\n==> "+three+" <==\na a a\n", out)

	_, err = run(t, fakeEngine, "text", "--alphabet", "abc", "--include", "*.jpg", scans)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image files")
}

func TestText_ConfigFileAndFlags(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linocr.yaml"),
		[]byte("recognizer:\n  alphabet: abc\n  allowed_chars: b\n"), 0o600))

	// The config file restricts output to "b", which the model never emits.
	out, err := run(t, fakeEngine, "text", img)
	require.NoError(t, err)
	assert.Empty(t, out)

	// Flags override the file.
	out, err = run(t, fakeEngine, "text", "--allowed-chars", "a", img)
	require.NoError(t, err)
	assert.Equal(t, "a a a\n", out)
}

func TestText_Errors(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")

	_, err := run(t, fakeEngine, "text")
	require.Error(t, err)

	_, err = run(t, fakeEngine, "text", "--alphabet", "abc", filepath.Join(dir, "missing.png"))
	require.Error(t, err)

	_, err = run(t, fakeEngine, "text", "--alphabet", "abc", filepath.Join(dir, "notes.txt"))
	require.Error(t, err)

	_, err = run(t, fakeEngine, "text", "--log-level", "loud", img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log level")

	_, err = run(t, fakeEngine, "text", "--decode-method", "viterbi", img)
	require.Error(t, err)

	_, err = run(t, fakeEngine, "text", "--config", filepath.Join(dir, "nope.yaml"), img)
	require.Error(t, err)
}

func TestText_NoModelsConfigured(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")

	_, err := run(t, buildEngine, "text", img)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrDetectionModelNotLoaded)

	_, err = run(t, buildEngine, "text", "--det-model", filepath.Join(dir, "missing.onnx"), img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to build OCR engine")

	// detection.onnx is picked up from the models directory
	modelsDir := filepath.Join(dir, "mymodels")
	require.NoError(t, os.MkdirAll(filepath.Join(modelsDir, "detection"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(modelsDir, "detection", "detection.onnx"), []byte("not a model"), 0o600))
	_, err = run(t, buildEngine, "text", "--models-dir", modelsDir, img)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection model")
	assert.NotErrorIs(t, err, pipeline.ErrDetectionModelNotLoaded)
}

func TestLines(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")

	out, err := run(t, fakeEngine, "lines", "--alphabet", "abc", img)
	require.NoError(t, err)

	var res []FileLines
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.Equal(t, img, res[0].File)
	require.Len(t, res[0].Lines, 1)
	line := res[0].Lines[0]
	assert.Equal(t, 0, line.Index)
	assert.Equal(t, "a a a", line.Text)
	assert.InDelta(t, 0.9, line.Confidence, 0.01)
	require.Len(t, line.Words, 3)
	assert.Less(t, line.Words[0].Box[0][0], line.Words[1].Box[0][0])

	out, err = run(t, fakeEngine, "text", "--alphabet", "abc", "--decode-method", "beam", "--beam-width", "4", img)
	require.NoError(t, err)
	assert.Equal(t, "a a a\n", out)
}

func TestDetect(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")
	overlays := filepath.Join(dir, "overlays")
	probs := filepath.Join(dir, "probs")

	out, err := run(t, fakeEngine, "detect", "--threshold", "0.4", "--overlay-dir", overlays, "--prob-dir", probs, img)
	require.NoError(t, err)

	var res []FileDetections
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 1)
	assert.InDelta(t, 0.4, res[0].Threshold, 1e-6)
	assert.Len(t, res[0].Words, 3)
	require.Len(t, res[0].Lines, 1)
	assert.Len(t, res[0].Lines[0], 3)

	assert.FileExists(t, filepath.Join(overlays, "words_overlay.png"))
	assert.FileExists(t, filepath.Join(probs, "words_prob.png"))
}

func TestFind(t *testing.T) {
	dir := isolate(t)
	img := threeWords(t, dir, "words.png")

	out, err := run(t, fakeEngine, "find", "--alphabet", "abc", "-k", "A", "--json", img)
	require.NoError(t, err)
	var res []KeywordResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res, 3)
	for i, r := range res {
		assert.Equal(t, img, r.File)
		assert.Equal(t, "A", r.Keyword)
		assert.Equal(t, i, r.Word)
		assert.Equal(t, "a", r.Text)
	}

	out, err = run(t, fakeEngine, "find", "--alphabet", "abc", "-k", "a a a", img)
	require.NoError(t, err)
	assert.Equal(t, img+"\ta a a\t0\t-1\ta a a\n", out)

	_, err = run(t, fakeEngine, "find", "--alphabet", "abc", img)
	require.Error(t, err)
}

func TestConfigCommands(t *testing.T) {
	dir := isolate(t)

	out, err := run(t, fakeEngine, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "linocr.yaml")
	assert.FileExists(t, filepath.Join(dir, "linocr.yaml"))

	_, err = run(t, fakeEngine, "config", "init")
	require.Error(t, err)
	_, err = run(t, fakeEngine, "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, fakeEngine, "config", "show", "--decode-method", "beam", "--min-area", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "# from")
	assert.Contains(t, out, "decode_method: beam")
	assert.Contains(t, out, "min_area: 7")

	out, err = run(t, fakeEngine, "config", "paths")
	require.NoError(t, err)
	assert.Contains(t, out, "/etc/linocr")
}

func TestConfigShow_InvalidConfigStillPrints(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "linocr.yaml"), []byte("log_level: loud\n"), 0o600))

	out, err := run(t, fakeEngine, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "log_level: loud")
}

func TestServe_StopsWithContext(t *testing.T) {
	isolate(t)
	root := newRootCommand(fakeEngine)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs([]string{"serve", "--host", "127.0.0.1", "--port", "0", "--rate-limit"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, root.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "Listening on http://127.0.0.1:0")
}

func TestServe_InvalidSettings(t *testing.T) {
	isolate(t)
	_, err := run(t, fakeEngine, "serve", "--max-upload-mb", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_upload_mb")

	_, err = run(t, fakeEngine, "serve", "extra")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, fakeEngine, "--version")
	require.NoError(t, err)
	assert.Contains(t, out, "commit:")
}
