package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/victornm/simlive/internal/config"
	"github.com/victornm/simlive/internal/server"
)

var rootCmd = &cobra.Command{
	Use:          "simlive",
	Short:        "Live synchronization core for presencial simulation sessions",
	SilenceUsage: true,
}

var (
	configPath string
	debug      bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (defaults to $"+config.EnvPath+")")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log at debug level")

	rootCmd.PersistentPreRun = func(*cobra.Command, []string) {
		if debug {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(required bool) (server.Config, error) {
	var c server.Config

	p := config.Path(configPath)
	if p == "" && required {
		return c, fmt.Errorf("%s not set and no --config given", config.EnvPath)
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
