// Package batch expands command line inputs into image files and
// processes them concurrently.
package batch

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/linocr/internal/utils"
)

// DiscoverOptions controls directory expansion.
type DiscoverOptions struct {
	// Recursive descends into subdirectories.
	Recursive bool
	// Include and Exclude are filepath.Match patterns on the base name.
	// Exclude wins over Include; no Include patterns include everything.
	Include []string
	Exclude []string
}

// DiscoverImageFiles expands every directory in args into the supported
// image files it contains, in lexical order. Files named directly are kept
// unless excluded, whatever their extension.
func DiscoverImageFiles(args []string, opts DiscoverOptions) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if opts.shouldInclude(arg) {
				files = append(files, arg)
			}
			continue
		}
		found, err := discoverInDirectory(arg, opts)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

func discoverInDirectory(dir string, opts DiscoverOptions) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !opts.Recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if utils.IsSupportedImage(path) && opts.shouldInclude(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return files, nil
}

func (o DiscoverOptions) shouldInclude(path string) bool {
	if matchesAnyPattern(path, o.Exclude) {
		return false
	}
	return len(o.Include) == 0 || matchesAnyPattern(path, o.Include)
}

func matchesAnyPattern(path string, patterns []string) bool {
	base := filepath.Base(path)
	for _, pattern := range patterns {
		if matched, _ := filepath.Match(pattern, base); matched {
			return true
		}
	}
	return false
}
