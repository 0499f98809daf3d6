package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
)

func (a *app) textCmd() *cobra.Command {
	var (
		output string
		in     inputFlags
	)
	cmd := &cobra.Command{
		Use:   "text <image|dir>...",
		Short: "Print the text of images, one line per text line",
		Long: `Detect, group and recognise the text of each image and print it with one
output line per text line. With several images each result is preceded by
a "==> file <==" header. Directories are expanded to the images they hold.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, texts, err := eachImage(a, cmd, &in, args,
				func(ctx context.Context, eng *pipeline.Engine, path string, img *imagesrc.NormalizedImage) (string, error) {
					text, err := eng.GetText(ctx, img)
					if err != nil {
						return "", fmt.Errorf("OCR failed for %s: %w", path, err)
					}
					return text, nil
				})
			if err != nil {
				return err
			}

			var b strings.Builder
			for i, text := range texts {
				if len(files) > 1 {
					fmt.Fprintf(&b, "==> %s <==\n", files[i])
				}
				if text != "" {
					b.WriteString(text)
					b.WriteString("\n")
				}
			}
			return writeOutput(cmd.OutOrStdout(), output, b.String())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	in.register(cmd)
	return cmd
}

func (a *app) linesCmd() *cobra.Command {
	var (
		output string
		in     inputFlags
	)
	cmd := &cobra.Command{
		Use:   "lines <image|dir>...",
		Short: "Print recognised lines with words, boxes and confidences as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, results, err := eachImage(a, cmd, &in, args,
				func(ctx context.Context, eng *pipeline.Engine, path string, img *imagesrc.NormalizedImage) (FileLines, error) {
					lines, err := eng.GetTextLines(ctx, img)
					if err != nil {
						return FileLines{}, fmt.Errorf("OCR failed for %s: %w", path, err)
					}
					return FileLines{File: path, Lines: pipeline.LineResults(lines)}, nil
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
	in.register(cmd)
	return cmd
}
