package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pagepress/internal/app"
	"pagepress/internal/config"
	"pagepress/pkg/logger"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
	log     *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pagepress",
	Short: "Turn web articles and PDFs into an EPUB plus PDF files",
	Long: `pagepress classifies each input as an article or a PDF, bundles all
articles (with their images) into one EPUB and fetches every PDF as a
standalone file. The results can be mailed to a reading device.

Example usage:
  pagepress build --input urls.csv --out ./books
  pagepress build --input urls.ndjson --title "Weekend reading" --send
  pagepress classify https://arxiv.org/abs/1706.03762
  pagepress inspect "2024-06-01T18_05_09 example.com.epub"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $PAGEPRESS_CONFIG or ./pagepress.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func initConfig() error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadConfig(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	log = app.NewLogger(cfg)
	log.Debugf("configuration loaded: output=%s delivery=%v", cfg.Output.Dir, cfg.Delivery.Enabled)
	return nil
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
