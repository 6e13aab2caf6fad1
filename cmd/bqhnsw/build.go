package main

import (
	"fmt"

	"github.com/hupe1980/bqhnsw/distance"
	"github.com/spf13/cobra"
)

var (
	buildSegment    string
	buildSimilarity string
	buildLimit      int
)

var buildCmd = &cobra.Command{
	Use:   "build <vectors.fvecs>",
	Short: "Build a segment from an .fvecs file",
	Long: `Build a segment from an .fvecs file. Ordinals follow file order.

Examples:
  bqhnsw build --dir ./idx --segment seg-0001 base.fvecs
  bqhnsw build --dir ./idx --segment seg-0001 --similarity euclidean --limit 100000 base.fvecs`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildSegment, "segment", "s", "", "Segment name")
	buildCmd.Flags().StringVar(&buildSimilarity, "similarity", "dot_product", "Similarity: euclidean, dot_product, cosine or max_inner_product")
	buildCmd.Flags().IntVarP(&buildLimit, "limit", "n", 0, "Maximum number of vectors to read (0 = all)")
	_ = buildCmd.MarkFlagRequired("segment")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	sim, err := distance.ParseSimilarity(buildSimilarity)
	if err != nil {
		return err
	}
	vectors, err := readFvecs(args[0], buildLimit)
	if err != nil {
		return err
	}

	f, err := newFormat(cmd)
	if err != nil {
		return err
	}
	dir, err := openDir()
	if err != nil {
		return err
	}

	w, err := f.NewWriter(dir, buildSegment, len(vectors[0]), sim)
	if err != nil {
		return err
	}
	for i, v := range vectors {
		if err := w.Add(ctx, i, v); err != nil {
			_ = w.Abort()
			return fmt.Errorf("add vector %d: %w", i, err)
		}
	}
	if err := w.Seal(ctx); err != nil {
		return fmt.Errorf("seal failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built segment %s: %d vectors, dimension %d, %s\n",
		buildSegment, len(vectors), len(vectors[0]), sim)
	return nil
}
