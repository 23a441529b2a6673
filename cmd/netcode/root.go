package main

import (
	"github.com/spf13/cobra"

	"github.com/1ureka/netcode/internal/config"
	"github.com/1ureka/netcode/internal/util"
)

var version = "dev"

var (
	configPath string
	debugMode  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "netcode",
	Short:   "Reliable UDP game networking",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
		} else {
			cfg = config.Default()
		}

		if debugMode || cfg.Log.Debug {
			util.EnableDebug()
		}
		if cfg.Log.File != "" {
			util.LogToFile(cfg.Log.File)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(browseCmd)
}
