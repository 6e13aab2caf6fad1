package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/bqhnsw"
	"github.com/spf13/cobra"
)

var (
	mergeSegment string
	mergeDeletes []string
)

var mergeCmd = &cobra.Command{
	Use:   "merge <source>...",
	Short: "Merge segments into a new segment",
	Long: `Merge segments into a new segment, dropping deleted ordinals.

Examples:
  bqhnsw merge --dir ./idx --segment seg-0003 seg-0001 seg-0002
  bqhnsw merge --dir ./idx --segment seg-0003 --delete seg-0001=4,17 seg-0001 seg-0002`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().StringVarP(&mergeSegment, "segment", "s", "", "Name of the merged segment")
	mergeCmd.Flags().StringArrayVar(&mergeDeletes, "delete", nil, "Deleted ordinals as <source>=<ord>,<ord>,... (repeatable)")
	_ = mergeCmd.MarkFlagRequired("segment")
}

// parseDeletes turns --delete values into per-source bitmaps.
func parseDeletes(values []string) (map[string]*roaring.Bitmap, error) {
	deletes := make(map[string]*roaring.Bitmap)
	for _, v := range values {
		name, list, ok := strings.Cut(v, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --delete %q: expected <source>=<ord>,...", v)
		}
		bm, found := deletes[name]
		if !found {
			bm = roaring.New()
			deletes[name] = bm
		}
		for _, s := range strings.Split(list, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			ord, err := strconv.ParseUint(s, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid --delete %q: %w", v, err)
			}
			bm.Add(uint32(ord))
		}
	}
	return deletes, nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	deletes, err := parseDeletes(mergeDeletes)
	if err != nil {
		return err
	}
	for name := range deletes {
		if !containsString(args, name) {
			return fmt.Errorf("--delete names %s, which is not a merge source", name)
		}
	}

	f, err := newFormat(cmd)
	if err != nil {
		return err
	}
	dir, err := openDir()
	if err != nil {
		return err
	}

	inputs := make([]bqhnsw.MergeInput, 0, len(args))
	for _, name := range args {
		r, err := f.NewReader(dir, name)
		if err != nil {
			return err
		}
		defer r.Close()
		inputs = append(inputs, bqhnsw.MergeInput{Source: r, Deleted: deletes[name]})
	}

	stats, err := f.Merge(ctx, dir, mergeSegment, inputs)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "merged %d segments into %s: %d vectors, %d deleted, %s\n",
		stats.Sources, mergeSegment, stats.Vectors, stats.Skipped, stats.Duration)
	return nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
