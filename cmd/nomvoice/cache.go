package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nomvoice/internal/bootstrap"
	"nomvoice/internal/config"
	"nomvoice/internal/speechcache"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the speech cache",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "stats",
			Short: "Show speech cache usage",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cache, cfg, err := openCache(root.configPath)
				if err != nil {
					return err
				}
				printCacheStats(cmd.OutOrStdout(), cfg, cache.Entries(), time.Now())
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Delete every cached clip",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cache, _, err := openCache(root.configPath)
				if err != nil {
					return err
				}
				count := cache.Len()
				cache.Clear()
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d clips\n", count)
				return nil
			},
		},
	)
	return cmd
}

func openCache(configPath string) (*speechcache.Cache, config.CacheConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, config.CacheConfig{}, err
	}
	cache, err := speechcache.Open(bootstrap.CacheConfig(cfg.Cache), zerolog.Nop())
	if err != nil {
		return nil, config.CacheConfig{}, err
	}
	return cache, cfg.Cache, nil
}

func printCacheStats(out io.Writer, cfg config.CacheConfig, entries []speechcache.Entry, now time.Time) {
	var total int64
	for _, entry := range entries {
		total += entry.Size
	}
	fmt.Fprintf(out, "dir:      %s\n", cfg.Dir)
	fmt.Fprintf(out, "clips:    %d / %d\n", len(entries), cfg.Capacity)
	fmt.Fprintf(out, "size:     %s\n", formatBytes(total))
	fmt.Fprintf(out, "ttl:      %s\n", cfg.TTL)
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(out, "oldest:   %s ago\n", now.Sub(entries[0].CreatedAt).Round(time.Second))
	fmt.Fprintf(out, "newest:   %s ago\n", now.Sub(entries[len(entries)-1].CreatedAt).Round(time.Second))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
