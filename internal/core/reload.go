package core

import (
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog"
)

// ReloadConfig reloads the configuration from disk and applies changes that
// can be hot-reloaded without restarting the engine. Returns a list of what
// changed.
//
// Hot-reloadable settings:
//   - data source, root, s3 settings and mapping (rebuilds the knowledge base)
//   - API keys, CORS origins, rate limit
//   - search defaults
//   - logging level (recorded; loggers pick it up on restart)
//
// NOT hot-reloadable (require restart):
//   - bus config
//   - server host/port
//   - snapshot target
//   - data.watch (a running watcher keeps its interval and root)
func ReloadConfig(ctx context.Context, engine *Engine, configPath string, logger zerolog.Logger) ([]string, error) {
	if configPath == "" {
		return nil, fmt.Errorf("no config path set, cannot reload")
	}

	newCfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if _, errs := newCfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %s", errs[0])
	}

	var changes []string

	if newCfg.LogLevel() != engine.Config.LogLevel() {
		engine.Config.Logging.Level = newCfg.Logging.Level
		changes = append(changes, "logging.level → "+newCfg.LogLevel())
	}

	if !slices.Equal(newCfg.Server.APIKeys, engine.Config.Server.APIKeys) {
		engine.Config.Server.APIKeys = newCfg.Server.APIKeys
		changes = append(changes, fmt.Sprintf("server.api_keys → %d keys", len(newCfg.Server.APIKeys)))
	}
	if !slices.Equal(newCfg.Server.ReadOnlyKeys, engine.Config.Server.ReadOnlyKeys) {
		engine.Config.Server.ReadOnlyKeys = newCfg.Server.ReadOnlyKeys
		changes = append(changes, fmt.Sprintf("server.read_only_keys → %d keys", len(newCfg.Server.ReadOnlyKeys)))
	}
	if !slices.Equal(newCfg.Server.CORSOrigins, engine.Config.Server.CORSOrigins) {
		engine.Config.Server.CORSOrigins = newCfg.Server.CORSOrigins
		changes = append(changes, fmt.Sprintf("server.cors_origins → %d origins", len(newCfg.Server.CORSOrigins)))
	}
	if newCfg.Server.RateLimit != engine.Config.Server.RateLimit {
		engine.Config.Server.RateLimit = newCfg.Server.RateLimit
		changes = append(changes, fmt.Sprintf("server.rate_limit → %d", newCfg.Server.RateLimit))
	}

	if newCfg.Search != engine.Config.Search {
		engine.Config.Search = newCfg.Search
		changes = append(changes, fmt.Sprintf("search → logic %s, substring %v", newCfg.Search.DefaultLogic, newCfg.Search.Substring))
	}

	newData := newCfg.Data
	newData.Watch = engine.Config.Data.Watch
	if newData != engine.Config.Data {
		old := engine.Config.Data
		engine.Config.Data = newData
		if err := engine.Reload(ctx); err != nil {
			engine.Config.Data = old
			return changes, fmt.Errorf("applying data config: %w", err)
		}
		changes = append(changes, fmt.Sprintf("data → %s %s, knowledge base reloaded", newCfg.Data.Source, dataLocation(newCfg.Data)))
	}

	if len(changes) == 0 {
		changes = append(changes, "no changes detected")
	}

	logger.Info().Strs("changes", changes).Msg("configuration reloaded")
	return changes, nil
}

func dataLocation(d DataConfig) string {
	if d.Source == SourceS3 {
		return "s3://" + d.S3.Bucket + "/" + d.S3.Prefix
	}
	return d.Root
}
