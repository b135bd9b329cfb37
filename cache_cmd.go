package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dgnsrekt/speakstream/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Show synthesis cache usage",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !cfg.Cache.Enabled {
			return errors.New("the cache is disabled")
		}
		m, err := openCache(cfg.Cache)
		if err != nil {
			return err
		}
		defer m.Close() //nolint:errcheck

		stats := m.Stats()
		for _, level := range []cache.Level{cache.LevelMemory, cache.LevelDisk} {
			s, ok := stats[level]
			if !ok {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-7s %s\n", keyword(level.String()), s)
		}
		return nil
	},
}
