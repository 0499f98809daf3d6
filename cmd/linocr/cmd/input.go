package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/linocr/internal/batch"
	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
)

// inputFlags selects the images a command reads and how many run at once.
type inputFlags struct {
	discover batch.DiscoverOptions
	jobs     int
}

func (in *inputFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVarP(&in.discover.Recursive, "recursive", "r", false, "descend into subdirectories of directory arguments")
	f.StringSliceVar(&in.discover.Include, "include", nil, "only read files matching these patterns (e.g. '*.png')")
	f.StringSliceVar(&in.discover.Exclude, "exclude", nil, "skip files matching these patterns")
	f.IntVarP(&in.jobs, "jobs", "j", 1, "images processed concurrently (0 = NumCPU)")
}

type imageFunc[T any] func(ctx context.Context, eng *pipeline.Engine, path string, img *imagesrc.NormalizedImage) (T, error)

// eachImage expands args into image files and runs fn on every image.
// Results are in file order.
func eachImage[T any](a *app, cmd *cobra.Command, in *inputFlags, args []string, fn imageFunc[T]) ([]string, []T, error) {
	files, err := batch.DiscoverImageFiles(args, in.discover)
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, errors.New("no image files found")
	}
	var results []T
	err = a.withEngine(func(eng *pipeline.Engine) error {
		var err error
		results, err = batch.Map(cmd.Context(), files, in.jobs, func(ctx context.Context, path string) (T, error) {
			img, err := loadImage(eng, path)
			if err != nil {
				var zero T
				return zero, err
			}
			return fn(ctx, eng, path, img)
		})
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return files, results, nil
}
