package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/yalue/onnxruntime_go"
)

// EnvLibraryPath names the environment variable consulted for the ONNX
// Runtime shared library.
const EnvLibraryPath = "ONNXRUNTIME_LIB"

// GPUConfig selects the CUDA execution provider for a session.
type GPUConfig struct {
	Enabled bool
	Device  int
	// MemLimit caps the CUDA arena in bytes; 0 leaves it to the runtime.
	MemLimit uint64
	// ArenaStrategy is kNextPowerOfTwo or kSameAsRequested.
	ArenaStrategy string
}

// DefaultGPUConfig runs on the CPU.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{ArenaStrategy: "kNextPowerOfTwo"}
}

// Validate reports settings the CUDA provider would reject. A disabled
// config is always valid.
func (c GPUConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Device < 0 {
		return fmt.Errorf("gpu device must be >= 0, got %d", c.Device)
	}
	if c.ArenaStrategy != "" && c.ArenaStrategy != "kNextPowerOfTwo" && c.ArenaStrategy != "kSameAsRequested" {
		return fmt.Errorf("unknown arena strategy %q (kNextPowerOfTwo, kSameAsRequested)", c.ArenaStrategy)
	}
	return nil
}

func (c GPUConfig) providerSettings() map[string]string {
	s := map[string]string{"device_id": strconv.Itoa(c.Device)}
	if c.MemLimit > 0 {
		s["gpu_mem_limit"] = strconv.FormatUint(c.MemLimit, 10)
	}
	if c.ArenaStrategy != "" {
		s["arena_extend_strategy"] = c.ArenaStrategy
	}
	return s
}

// appendCUDA adds the CUDA provider to opts when c is enabled.
func appendCUDA(opts *onnxruntime_go.SessionOptions, c GPUConfig) error {
	if !c.Enabled {
		return nil
	}
	cuda, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("CUDA provider unavailable: %w", err)
	}
	defer func() {
		if err := cuda.Destroy(); err != nil {
			slog.Warn("failed to release CUDA provider options", "error", err)
		}
	}()
	if err := cuda.Update(c.providerSettings()); err != nil {
		return fmt.Errorf("invalid CUDA provider settings: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		return fmt.Errorf("failed to enable CUDA provider: %w", err)
	}
	return nil
}

func libraryFile() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// libraryCandidates lists the places searched for the runtime library, in
// order. GPU builds are preferred when useGPU is set.
func libraryCandidates(useGPU bool) []string {
	name := libraryFile()
	var out []string
	if env := os.Getenv(EnvLibraryPath); env != "" {
		out = append(out, env)
	}
	if useGPU {
		out = append(out, filepath.Join("/opt/onnxruntime/gpu/lib", name))
	}
	return append(out,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/usr/lib", name),
		filepath.Join("/opt/onnxruntime/cpu/lib", name),
		filepath.Join("onnxruntime", "lib", name),
	)
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

// ResolveLibraryPath returns explicit if it exists, otherwise the first
// existing library from $ONNXRUNTIME_LIB, the system locations and
// ./onnxruntime/lib.
func ResolveLibraryPath(explicit string, useGPU bool) (string, error) {
	if explicit != "" {
		if !isFile(explicit) {
			return "", fmt.Errorf("ONNX Runtime library not found at %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range libraryCandidates(useGPU) {
		if isFile(p) {
			return p, nil
		}
	}
	return "", errors.New("ONNX Runtime library not found; set " + EnvLibraryPath + " or models.library_path")
}
