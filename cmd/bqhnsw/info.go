package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <segment>",
	Short: "Show segment metadata and graph statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "Output as JSON")
}

func runInfo(cmd *cobra.Command, args []string) error {
	f, err := newFormat(cmd)
	if err != nil {
		return err
	}
	dir, err := openDir()
	if err != nil {
		return err
	}
	r, err := f.NewReader(dir, args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	info, err := r.Info()
	if err != nil {
		return err
	}
	size := f.OffHeapByteSize(r)

	out := cmd.OutOrStdout()
	if infoJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Info    any              `json:"info"`
			OffHeap map[string]int64 `json:"off_heap"`
		}{info, size.Map()})
	}

	fmt.Fprintf(out, "format:      %s\n", f)
	fmt.Fprintf(out, "segment:     %s (%s)\n", info.Segment, info.ID)
	fmt.Fprintf(out, "similarity:  %s\n", info.Similarity)
	fmt.Fprintf(out, "vectors:     %d x %d\n", info.Count, info.Dimension)
	fmt.Fprintf(out, "graph:       M=%d beam=%d entry=%d\n", info.MaxConnections, info.BeamWidth, info.EntryPoint)
	fmt.Fprintf(out, "raw mode:    %s\n", info.RawMode)
	offHeap := size.Map()
	for _, key := range slices.Sorted(maps.Keys(offHeap)) {
		fmt.Fprintf(out, "off-heap %s: %d bytes\n", key, offHeap[key])
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tNODES\tCONNECTIONS\tMAX")
	for _, lvl := range info.Levels {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\n", lvl.Level, lvl.Nodes, lvl.Connections, lvl.MaxConnections)
	}
	return tw.Flush()
}
