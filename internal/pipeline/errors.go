package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrDetectionModelNotLoaded is returned by operations that need word detection.
	ErrDetectionModelNotLoaded = errors.New("detection model not loaded")
	// ErrRecognitionModelNotLoaded is returned by operations that need text recognition.
	ErrRecognitionModelNotLoaded = errors.New("recognition model not loaded")
)

// ConfigurationError reports an operation the engine was not set up for.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
