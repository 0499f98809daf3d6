package cmd

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
)

func (a *app) detectCmd() *cobra.Command {
	var (
		output, overlayDir, probDir string
		in                          inputFlags
	)
	cmd := &cobra.Command{
		Use:   "detect <image|dir>...",
		Short: "Print detected word and line boxes as JSON",
		Long: `Run only the detection model and line layout. Needs no recognition model.

Optionally writes the text probability map and an overlay of word and line
boxes for each image.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, results, err := eachImage(a, cmd, &in, args,
				func(ctx context.Context, eng *pipeline.Engine, path string, img *imagesrc.NormalizedImage) (FileDetections, error) {
					words, err := eng.DetectWords(ctx, img)
					if err != nil {
						return FileDetections{}, fmt.Errorf("detection failed for %s: %w", path, err)
					}
					lines := eng.FindTextLines(words)

					base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
					if overlayDir != "" {
						ov := pipeline.RenderOverlay(img.ToImage(), words, lines)
						if err := saveImage(overlayDir, base+"_overlay.png", ov); err != nil {
							return FileDetections{}, err
						}
					}
					if probDir != "" {
						m, err := eng.DetectTextPixels(ctx, img)
						if err != nil {
							return FileDetections{}, fmt.Errorf("detection failed for %s: %w", path, err)
						}
						if err := saveImage(probDir, base+"_prob.png", pipeline.RenderProbabilityMap(m)); err != nil {
							return FileDetections{}, err
						}
					}
					return FileDetections{File: path, DetectionResult: pipeline.NewDetectionResult(eng.DetectionThreshold(), words, lines)}, nil
				})
			if err != nil {
				return err
			}
			s, err := marshalJSON(results)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, s)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringVar(&overlayDir, "overlay-dir", "", "directory to write overlay images (drawn boxes)")
	cmd.Flags().StringVar(&probDir, "prob-dir", "", "directory to write probability maps")
	in.register(cmd)
	return cmd
}

func saveImage(dir, name string, img image.Image) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	slog.Debug("wrote image", "path", path)
	return nil
}
