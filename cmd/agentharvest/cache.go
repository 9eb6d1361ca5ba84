package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"agentharvest/pkg/cache"
	"agentharvest/pkg/config"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the response cache",
}

// purgeCmd represents the cache purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove expired entries from the response cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		store, err := cache.NewStore(cfg.Output.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to open response cache: %w", err)
		}

		removed, err := store.PurgeExpired()
		if err != nil {
			return fmt.Errorf("purge failed: %w", err)
		}

		fmt.Printf("Removed %d expired entries from %s\n", removed, cfg.Output.CacheDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(purgeCmd)
}
