// Package cmd holds the lcdgauge command line.
package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shaunagostinho/lcdgauge/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "lcdgauge",
	Short: "Engine gauges on the factory instrument LCD",
	Long: `lcdgauge sits between the head unit and the instrument cluster,
replacing the text on the centre LCD with live engine readings and a
trouble-code browser.`,
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("exiting")
		return 1
	}
	return 0
}

// loadConfig reads the config and sets the log level from it.
func loadConfig() (*config.Config, *logrus.Entry) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	log := logrus.NewEntry(logrus.StandardLogger())
	cfg := config.LoadConfig(configPath, log)
	logrus.SetLevel(cfg.LogLevel())
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	return cfg, log
}
