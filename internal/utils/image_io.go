package utils

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
)

// SupportedImageExtensions lists supported file extensions for loading.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp"}

// ImageLoadError reports a failure to read or decode an image file.
type ImageLoadError struct {
	Path      string
	Operation string
	Err       error
}

func (e *ImageLoadError) Error() string {
	return fmt.Sprintf("image %s: %s: %v", e.Path, e.Operation, e.Err)
}

func (e *ImageLoadError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether the path has a supported image extension.
func IsSupportedImage(path string) bool {
	return slices.Contains(SupportedImageExtensions, strings.ToLower(filepath.Ext(path)))
}

// LoadImage opens and decodes an image file.
func LoadImage(path string) (image.Image, error) {
	if path == "" {
		return nil, &ImageLoadError{Operation: "open", Err: errors.New("empty path")}
	}
	if !IsSupportedImage(path) {
		return nil, &ImageLoadError{Path: path, Operation: "open", Err: fmt.Errorf("unsupported format %q", filepath.Ext(path))}
	}

	f, err := os.Open(path) //nolint:gosec // G304: reading a user-provided image path is expected
	if err != nil {
		return nil, &ImageLoadError{Path: path, Operation: "open", Err: err}
	}
	defer func() { _ = f.Close() }()

	return DecodeImage(f, path)
}

// DecodeImage decodes a JPEG, PNG or BMP stream. name is only used in errors.
func DecodeImage(r io.Reader, name string) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, &ImageLoadError{Path: name, Operation: "decode", Err: err}
	}
	return img, nil
}
