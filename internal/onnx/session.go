package onnx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// SessionConfig describes how to load a model into ONNX Runtime.
type SessionConfig struct {
	ModelPath   string
	LibraryPath string
	NumThreads  int
	GPU         GPUConfig
}

// Session is a Model backed by an ONNX Runtime session with a single
// input and a single output.
type Session struct {
	name       string
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.Mutex
}

var envMu sync.Mutex

// setupEnvironment initialises the ONNX Runtime environment once per process.
func setupEnvironment(libraryPath string, useGPU bool) error {
	envMu.Lock()
	defer envMu.Unlock()
	if onnxruntime_go.IsInitialized() {
		return nil
	}
	lib, err := ResolveLibraryPath(libraryPath, useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(lib)
	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
	}
	return nil
}

// NewSession loads the model described by cfg.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if err := cfg.GPU.Validate(); err != nil {
		return nil, err
	}
	if err := setupEnvironment(cfg.LibraryPath, cfg.GPU.Enabled); err != nil {
		return nil, err
	}

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}

	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()
	if err := appendCUDA(opts, cfg.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if cfg.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	slog.Debug("loaded model",
		"path", cfg.ModelPath,
		"input", inputs[0].Name, "input_shape", inputs[0].Dimensions,
		"output", outputs[0].Name, "output_shape", outputs[0].Dimensions,
		"gpu", cfg.GPU.Enabled)

	return &Session{
		name:       cfg.ModelPath,
		session:    session,
		inputInfo:  inputs[0],
		outputInfo: outputs[0],
	}, nil
}

// InputShape returns the model's declared input shape.
func (s *Session) InputShape() []int64 {
	return slices.Clone([]int64(s.inputInfo.Dimensions))
}

// Run executes the model. ONNX Runtime calls cannot be interrupted, so ctx
// is only checked before the call.
func (s *Session) Run(ctx context.Context, input Tensor) (Tensor, error) {
	if err := ctx.Err(); err != nil {
		return Tensor{}, err
	}
	if err := input.Verify(); err != nil {
		return Tensor{}, fmt.Errorf("invalid input tensor: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Tensor{}, fmt.Errorf("session %s is closed", s.name)
	}

	in, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(input.Shape...), input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := in.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := s.session.Run([]onnxruntime_go.Value{in}, outputs); err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}
	out := outputs[0]
	defer func() {
		if err := out.Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}()

	ft, ok := out.(*onnxruntime_go.Tensor[float32])
	if !ok {
		return Tensor{}, fmt.Errorf("expected float32 output tensor, got %T", out)
	}
	return Tensor{
		Data:  slices.Clone(ft.GetData()),
		Shape: slices.Clone([]int64(out.GetShape())),
	}, nil
}

// Close releases the underlying session. The process-wide environment is left alive.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
