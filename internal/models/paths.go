// Package models locates model and alphabet files in a models directory.
//
// A models directory may be flat (dir/detection.onnx) or organised by type
// (dir/detection/detection.onnx); the organised layout wins when both exist.
package models

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default file names.
const (
	DetectionModel   = "detection.onnx"
	RecognitionModel = "recognition.onnx"
	AlphabetFile     = "alphabet.txt"
)

// Subdirectories of the organised layout.
const (
	TypeDetection    = "detection"
	TypeRecognition  = "recognition"
	TypeDictionaries = "dictionaries"
)

// DefaultModelsDir is used when neither a directory nor EnvModelsDir is set.
const DefaultModelsDir = "models"

// EnvModelsDir overrides the models directory.
const EnvModelsDir = "LINOCR_MODELS_DIR"

// Paths holds the files the engine loads. Empty fields are not used.
type Paths struct {
	Detection   string
	Recognition string
	Alphabet    string
}

// GetModelsDir returns modelsDir, else $LINOCR_MODELS_DIR, else "models".
func GetModelsDir(modelsDir string) string {
	if modelsDir != "" {
		return modelsDir
	}
	if env := os.Getenv(EnvModelsDir); env != "" {
		return env
	}
	return DefaultModelsDir
}

// ResolveModelPath returns the organised path of filename when it exists
// and the flat path otherwise.
func ResolveModelPath(modelsDir, modelType, filename string) string {
	base := GetModelsDir(modelsDir)
	if modelType != "" {
		organised := filepath.Join(base, modelType, filename)
		if fileExists(organised) {
			return organised
		}
	}
	return filepath.Join(base, filename)
}

// Resolve fills the empty fields of explicit with the default files found
// in the models directory. Fields stay empty when no file exists.
func Resolve(modelsDir string, explicit Paths) Paths {
	find := func(modelType, filename string) string {
		if p := ResolveModelPath(modelsDir, modelType, filename); fileExists(p) {
			return p
		}
		return ""
	}
	out := explicit
	if out.Detection == "" {
		out.Detection = find(TypeDetection, DetectionModel)
	}
	if out.Recognition == "" {
		out.Recognition = find(TypeRecognition, RecognitionModel)
	}
	if out.Alphabet == "" {
		out.Alphabet = find(TypeDictionaries, AlphabetFile)
	}
	return out
}

// ValidateModelExists checks that a model file exists.
func ValidateModelExists(modelPath string) error {
	info, err := os.Stat(modelPath)
	if err != nil {
		return fmt.Errorf("model file not found: %s", modelPath)
	}
	if info.IsDir() {
		return fmt.Errorf("model path is a directory: %s", modelPath)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
