package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hakim/portprobe/internal/config"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "portprobe.yaml"

var (
	cfgFile string
	quiet   bool
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "portprobe",
	Short: "Concurrent TCP port scanner with banner grabbing",
	Long: `PortProbe checks which TCP ports of a host accept connections, reads the
greeting banner that open services send, and writes an ordered report.

Every run is recorded in a local database so past scans can be listed,
re-rendered and compared to spot newly exposed or closed services.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for commands that don't need it
		skipConfig := map[string]bool{
			"init":    true,
			"help":    true,
			"version": true,
		}

		if skipConfig[cmd.Name()] {
			return nil
		}

		var err error
		cfg, err = loadConfig(cfgFile, cmd.Flags().Changed("config"))
		return err
	},
}

// loadConfig reads path. A missing file is only an error when the user named
// it explicitly; otherwise the built-in defaults are used.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return config.DefaultConfig(), nil
	}

	loaded, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded, nil
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigFile, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only print warnings and the final summary")

	// Version flag
	rootCmd.Version = "0.1.0-dev"
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
