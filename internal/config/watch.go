package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// WatchRules reloads rules.yaml on change and calls onUpdate with the latest rules.
// It performs an initial load before entering the watch loop; an invalid file at
// that point is returned as an error. Invalid edits later are logged and skipped,
// leaving the previous rules in force.
func WatchRules(
	ctx context.Context,
	path string,
	interval time.Duration,
	logger zerolog.Logger,
	onUpdate func(*RulesConfig),
) error {
	if path == "" {
		path = "configs/rules.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	cfg, err := LoadRules(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				lastMod = info.ModTime()
				cfg, err := LoadRules(path)
				if err != nil {
					logger.Error().Err(err).Str("path", path).Msg("rules reload rejected")
					continue
				}
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}
