package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hakim/portprobe/internal/config"
	"github.com/hakim/portprobe/internal/storage"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize portprobe with default configuration",
	Long: `Creates a default configuration file (portprobe.yaml), the scan and log
directories, and the database used to store scan history and reports.

Running init is optional: without a config file the built-in defaults apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := filepath.Join(initDir, defaultConfigFile)

		// Check if config already exists
		if _, err := os.Stat(configPath); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s. Use --force to overwrite", configPath)
		}

		if err := storage.EnsureDir(initDir); err != nil {
			return fmt.Errorf("failed to create %s: %w", initDir, err)
		}

		// Create default config
		if err := config.WriteDefault(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		fmt.Printf("Created %s with default configuration\n", configPath)

		// Load the config we just created to get paths
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		for _, dir := range []string{c.ScanDir, c.LogDir} {
			if err := storage.EnsureDir(dir); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
			fmt.Printf("Created directory: %s\n", dir)
		}

		// Initialize database
		store, err := storage.NewStore(c.DBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer store.Close()
		fmt.Printf("Initialized database: %s\n", c.DBPath)

		fmt.Println()
		fmt.Println("PortProbe initialized successfully!")
		fmt.Println("Run 'portprobe scan -t <host> --common' to start scanning.")

		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config file")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "output directory")
	rootCmd.AddCommand(initCmd)
}
