package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/docmap/internal/config"
	"github.com/conduit-lang/docmap/internal/logging"
)

var (
	// Version information - will be set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// app holds what the persistent flags load for every subcommand
type app struct {
	configPath string
	noColor    bool

	cfg    *config.Config
	logger *zap.Logger
}

func (a *app) load(cmd *cobra.Command, args []string) error {
	if a.noColor {
		color.NoColor = true
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	rootCmd := &cobra.Command{
		Use:   "docmap",
		Short: "Inspect and serve mapped document stores",
		Long: `docmap works with the documents an object-document mapper keeps in its store.
It converts between Extended JSON and BSON, reads and writes single documents, renders
query documents and serves a collection browser over HTTP.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./docmap.yaml)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(a))
	rootCmd.AddCommand(newConvertCmd())
	rootCmd.AddCommand(newGetCmd(a))
	rootCmd.AddCommand(newPutCmd(a))
	rootCmd.AddCommand(newFilterCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, fmt.Sprintf("Error: %v", err))
		os.Exit(1)
	}
}
