package main

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/bqhnsw"
	"github.com/hupe1980/bqhnsw/distance"
	"github.com/spf13/cobra"
)

const searchDefaultK = 10

var (
	searchSegment    string
	searchK          int
	searchRerank     int
	searchBeam       int
	searchBudget     int
	searchSimilarity string
	searchJSON       bool
)

var searchCmd = &cobra.Command{
	Use:   "search <queries.fvecs>",
	Short: "Search a segment with the queries of an .fvecs file",
	Long: `Search a segment with every query of an .fvecs file.

Examples:
  bqhnsw search --dir ./idx --segment seg-0001 -k 10 query.fvecs
  bqhnsw search --dir ./idx --segment seg-0001 --rerank 100 --json query.fvecs | jq '.[0]'`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVarP(&searchSegment, "segment", "s", "", "Segment name")
	searchCmd.Flags().IntVarP(&searchK, "k", "k", searchDefaultK, "Number of neighbors")
	searchCmd.Flags().IntVar(&searchRerank, "rerank", 0, "Rescore this many candidates exactly (0 = off)")
	searchCmd.Flags().IntVar(&searchBeam, "beam", 0, "Level-0 beam width (0 = format default)")
	searchCmd.Flags().IntVar(&searchBudget, "visit-budget", 0, "Maximum nodes scored per query (0 = unlimited)")
	searchCmd.Flags().StringVar(&searchSimilarity, "similarity", "", "Similarity to request (default: the segment's)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output results as JSON")
	_ = searchCmd.MarkFlagRequired("segment")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	queries, err := readFvecs(args[0], 0)
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
	r, err := f.NewReader(dir, searchSegment)
	if err != nil {
		return err
	}
	defer r.Close()

	sim := r.Similarity()
	if searchSimilarity != "" {
		if sim, err = distance.ParseSimilarity(searchSimilarity); err != nil {
			return err
		}
	}

	opts := []bqhnsw.SearchOption{
		bqhnsw.WithRerank(searchRerank),
		bqhnsw.WithVisitBudget(searchBudget),
	}
	if searchBeam > 0 {
		opts = append(opts, bqhnsw.WithSearchBeamWidth(searchBeam))
	}

	all := make([][]bqhnsw.Result, 0, len(queries))
	for i, q := range queries {
		results, err := r.Search(ctx, q, searchK, sim, opts...)
		if err != nil {
			return fmt.Errorf("query %d: %w", i, err)
		}
		all = append(all, results)
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	for i, results := range all {
		fmt.Fprintf(out, "query %d:\n", i)
		for rank, res := range results {
			fmt.Fprintf(out, "  %2d. ord=%d score=%.6f\n", rank+1, res.Ordinal, res.Score)
		}
	}
	return nil
}
