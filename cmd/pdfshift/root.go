package main

import (
	"github.com/spf13/cobra"

	"github.com/feichai0017/pdfshift/config"
	"github.com/feichai0017/pdfshift/internal/agent"
	"github.com/feichai0017/pdfshift/pkg/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "pdfshift",
	Short:         "Shrink PDFs towards a target size",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")
}

func newLogger() (logger.Logger, error) {
	level := "warn"
	if verbose {
		level = "debug"
	}
	return logger.NewLogger(
		logger.WithLevel(level),
		logger.WithEncoding("console"),
		logger.WithOutputPaths([]string{"stderr"}),
		logger.WithErrorPaths(nil),
	)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

func newFactory(cc config.CompressionConfig, log logger.Logger) (*agent.ProcessorFactory, error) {
	return agent.NewProcessorFactory(cc, log)
}
