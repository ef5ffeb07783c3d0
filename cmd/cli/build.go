package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"pagepress/internal/app"
	"pagepress/internal/ioformats"
	"pagepress/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build [url...]",
	Short: "Build the EPUB and PDF files for a set of inputs",
	Long: `Build reads inputs from --input (CSV with a "url" column, or NDJSON)
and/or the arguments, writes the artifacts to the output directory and,
with --send, mails them in size-limited batches.`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringP("input", "i", "", "input file (csv with 'url' column or ndjson)")
	buildCmd.Flags().StringP("out", "o", "", "output directory (overrides output.dir)")
	buildCmd.Flags().String("title", "", "title of a multi-article book")
	buildCmd.Flags().Bool("send", false, "deliver artifacts by mail (also enabled by delivery.enabled)")
	buildCmd.Flags().String("report", "", "write classifications and failures as NDJSON to this file")
}

func runBuild(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	out, _ := cmd.Flags().GetString("out")
	title, _ := cmd.Flags().GetString("title")
	send, _ := cmd.Flags().GetBool("send")
	reportPath, _ := cmd.Flags().GetString("report")

	sources := ioformats.SourcesFromURLs(args)
	if input != "" {
		fromFile, err := ioformats.ReadSources(input)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		for i := range sources {
			sources[i].ID = strconv.Itoa(len(fromFile) + i + 1)
		}
		sources = append(fromFile, sources...)
	}
	if len(sources) == 0 {
		return errors.New("no inputs: pass --input or URLs")
	}
	if out != "" {
		cfg.Output.Dir = out
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer deps.Close()

	res, err := deps.Runner(sources).Run(ctx, pipeline.Request{Title: title, Deliver: send || cfg.Delivery.Enabled})
	if res != nil && reportPath != "" {
		if werr := writeReport(reportPath, res); werr != nil {
			log.Errorf("write report: %v", werr)
		}
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "wrote %s (%d bytes)\n", a.Filename, a.Size)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "failed [%s] %s: %s\n", f.Stage, f.URL, f.Error)
	}
	if rep := res.Delivery; rep != nil {
		fmt.Fprintf(w, "delivery: %d batches, %d sent, %d too large\n", rep.Batches, len(rep.Sent), len(rep.TooLarge))
	}
	for _, warn := range res.Warnings {
		fmt.Fprintln(w, "warning:", warn)
	}
	return nil
}

type reportLine struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func writeReport(path string, res *pipeline.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var lines []reportLine
	for _, c := range res.Classifications {
		lines = append(lines, reportLine{Kind: "classification", Data: c})
	}
	for _, a := range res.Artifacts {
		lines = append(lines, reportLine{Kind: "artifact", Data: a})
	}
	for _, fl := range res.Failures {
		lines = append(lines, reportLine{Kind: "failure", Data: fl})
	}
	if res.Delivery != nil {
		lines = append(lines, reportLine{Kind: "delivery", Data: res.Delivery})
	}
	return ioformats.WriteNDJSON(f, lines)
}
