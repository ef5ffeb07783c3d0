package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"pagepress/internal/archive"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file.epub>",
	Short: "List the entries of an archive written by pagepress",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().Bool("json", false, "output as JSON")
}

type entryInfo struct {
	Path  string `json:"path"`
	Size  int    `json:"size"`
	CRC32 string `json:"crc32"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	entries, err := archive.ReadEntries(data)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", args[0], err)
	}
	infos := make([]entryInfo, len(entries))
	for i, e := range entries {
		infos[i] = entryInfo{Path: e.Path, Size: len(e.Data), CRC32: fmt.Sprintf("%08x", archive.CRC32(e.Data))}
	}

	w := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}
	for _, in := range infos {
		fmt.Fprintf(w, "%10d  %s  %s\n", in.Size, in.CRC32, in.Path)
	}
	return nil
}
