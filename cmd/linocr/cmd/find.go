package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/linocr/internal/imagesrc"
	"github.com/MeKo-Tech/linocr/internal/pipeline"
)

// KeywordResult is the JSON form of a keyword match.
type KeywordResult struct {
	File string `json:"file"`
	pipeline.KeywordMatch
	Box pipeline.Box `json:"box"`
}

func (a *app) findCmd() *cobra.Command {
	var (
		output   string
		keywords []string
		asJSON   bool
		in       inputFlags
	)
	cmd := &cobra.Command{
		Use:   "find <image|dir>...",
		Short: "Locate keywords in recognised text",
		Long: `Recognise each image and report the words containing one of the keywords,
compared case-insensitively. A keyword with spaces is matched against whole
lines.

Examples:
  linocr find -k total -k "amount due" receipt.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keywords) == 0 {
				return errors.New("no keywords given (use --keyword)")
			}
			_, perFile, err := eachImage(a, cmd, &in, args,
				func(ctx context.Context, eng *pipeline.Engine, path string, img *imagesrc.NormalizedImage) ([]KeywordResult, error) {
					matches, err := eng.FindKeywords(ctx, img, keywords)
					if err != nil {
						return nil, fmt.Errorf("OCR failed for %s: %w", path, err)
					}
					out := make([]KeywordResult, 0, len(matches))
					for _, m := range matches {
						out = append(out, KeywordResult{File: path, KeywordMatch: m, Box: pipeline.BoxOf(m.Rect)})
					}
					return out, nil
				})
			if err != nil {
				return err
			}
			var results []KeywordResult
			for _, r := range perFile {
				results = append(results, r...)
			}

			if asJSON {
				if results == nil {
					results = []KeywordResult{}
				}
				s, err := marshalJSON(results)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), output, s)
			}
			var b strings.Builder
			for _, r := range results {
				fmt.Fprintf(&b, "%s\t%s\t%d\t%d\t%s\n", r.File, r.Keyword, r.Line, r.Word, r.Text)
			}
			return writeOutput(cmd.OutOrStdout(), output, b.String())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().StringArrayVarP(&keywords, "keyword", "k", nil, "keyword to search for (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print matches as JSON")
	in.register(cmd)
	return cmd
}
