package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pagepress/internal/app"
	"pagepress/internal/ioformats"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <url>...",
	Short: "Decide whether each URL is an article or a PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().Duration("timeout", 60*time.Second, "overall timeout")
	classifyCmd.Flags().Bool("verify", false, "confirm every PDF with a live content-type or magic-bytes check")
}

func runClassify(cmd *cobra.Command, args []string) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if verify, _ := cmd.Flags().GetBool("verify"); verify {
		cfg.Classifier.Strict = true
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	sources := ioformats.SourcesFromURLs(args)
	results := deps.Runner(sources).Classify(ctx, sources)
	if err := ioformats.WriteNDJSON(cmd.OutOrStdout(), results); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
