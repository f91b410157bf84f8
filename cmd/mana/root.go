package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/manaxbt/manaonsol/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "mana",
	Short:         "MANA persona tweet generator",
	Long:          "MANA generates persona tweets from a vector knowledge base and keeps a durable memory of what it has said.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	def := os.Getenv("CONFIG_PATH")
	if def == "" {
		def = "configs/mana.json"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", def, "Config file path (default: $CONFIG_PATH or configs/mana.json)")
}

// withApp loads the config, builds the components and runs fn against them.
func withApp(cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
