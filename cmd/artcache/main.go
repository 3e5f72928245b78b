package main

import (
	"context"
	"fmt"

	"artcache/internal/artifact"
	"artcache/internal/cache"
	"artcache/internal/config"
	"artcache/internal/core/logger"
	"artcache/internal/core/progress"
	"artcache/internal/core/types"
	"artcache/internal/provider"

	"github.com/alecthomas/kong"
)

type SyncCmd struct {
	Manifest string `arg:"" help:"Manifest file listing the artifacts to mirror"`
	Prune    bool   `short:"p" long:"prune" help:"Evict cached artifacts not listed in the manifest"`
}

type GetCmd struct {
	Key string `arg:"" help:"Cache key (provider/path)"`
}

type LsCmd struct {
}

type ClearCmd struct {
}

type CLI struct {
	Config string   `short:"c" long:"config" type:"path" help:"Config file path"`
	Debug  bool     `short:"d" long:"debug" help:"Enable debug logging"`
	Sync   SyncCmd  `cmd:"sync" help:"Synchronize the cache with a manifest"`
	Get    GetCmd   `cmd:"get" help:"Print the local path of a cached artifact"`
	Ls     LsCmd    `cmd:"ls" help:"List cached artifact keys"`
	Clear  ClearCmd `cmd:"clear" help:"Delete all cached artifacts"`
}

// setup loads configuration and builds an initialized cache. The returned
// providers map resolves manifest entries to artifacts.
func setup(ctx context.Context, cliRoot *CLI) (*config.Config, map[string]provider.Provider, *cache.ArtifactCache, error) {
	cfg, err := config.LoadConfig(cliRoot.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	if cliRoot.Debug || cfg.Debug {
		logger.SetDefaultLevel(logger.LevelDebug)
	}

	providers, err := provider.InitializeAll(cfg.Providers, cfg.Transfer, cfg.SpoolDir)
	if err != nil {
		return nil, nil, nil, err
	}

	prog := progress.NewProgress()
	prefetcher := provider.NewPrefetcher(
		provider.WithPrefetchWorkers(cfg.Transfer.Concurrency),
		provider.WithPrefetchProgress(prog),
	)

	artifactCache := cache.New(cfg.CacheName, cfg.CacheDir,
		cache.WithDownloader(prefetcher),
		cache.WithWorkers(cfg.Workers),
	)
	if err := artifactCache.Initialize(ctx); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	return cfg, providers, artifactCache, nil
}

func resolveManifest(manifest *config.Manifest, providers map[string]provider.Provider) ([]artifact.Artifact, error) {
	artifacts := make([]artifact.Artifact, 0, len(manifest.Artifacts))
	for _, entry := range manifest.Artifacts {
		p, ok := providers[entry.Provider]
		if !ok {
			return nil, fmt.Errorf("manifest references unknown provider %q", entry.Provider)
		}
		a, err := p.Resolve(entry.Path)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

func (c *SyncCmd) Run(cliRoot *CLI) error {
	ctx, cancel := types.DefaultSignalNotifySubContext()
	defer cancel()

	_, providers, artifactCache, err := setup(ctx, cliRoot)
	if err != nil {
		return err
	}

	manifest, err := config.LoadManifest(c.Manifest)
	if err != nil {
		return err
	}
	artifacts, err := resolveManifest(manifest, providers)
	if err != nil {
		return err
	}

	return artifactCache.PutAll(ctx, artifacts, c.Prune)
}

func (c *GetCmd) Run(cliRoot *CLI) error {
	ctx, cancel := types.DefaultSignalNotifySubContext()
	defer cancel()

	_, _, artifactCache, err := setup(ctx, cliRoot)
	if err != nil {
		return err
	}

	path, ok := artifactCache.Get(c.Key)
	if !ok {
		return fmt.Errorf("not cached: %s", c.Key)
	}
	fmt.Println(path)
	return nil
}

func (c *LsCmd) Run(cliRoot *CLI) error {
	ctx, cancel := types.DefaultSignalNotifySubContext()
	defer cancel()

	_, _, artifactCache, err := setup(ctx, cliRoot)
	if err != nil {
		return err
	}

	for _, key := range artifactCache.Keys() {
		fmt.Println(key)
	}
	return nil
}

func (c *ClearCmd) Run(cliRoot *CLI) error {
	ctx, cancel := types.DefaultSignalNotifySubContext()
	defer cancel()

	_, _, artifactCache, err := setup(ctx, cliRoot)
	if err != nil {
		return err
	}

	return artifactCache.Clear(ctx)
}

func main() {
	var cliRoot CLI
	kctx := kong.Parse(
		&cliRoot,
		kong.Name("artcache"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Description("artcache - Local disk cache for remote build artifacts"),
	)
	if err := kctx.Run(&cliRoot); err != nil {
		logger.NewLogger(logger.WithName("artcache")).Fatal("command failed", "error", err)
	}
}
