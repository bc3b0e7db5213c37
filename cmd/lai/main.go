package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lai/internal/config"
	"github.com/standardbeagle/lai/internal/debug"
	"github.com/standardbeagle/lai/internal/indexing"
	"github.com/standardbeagle/lai/internal/version"
)

// loadConfigWithOverrides loads configuration and applies CLI flag overrides
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	rootDir := c.String("root")
	if rootDir == "" {
		rootDir = "."
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root path %q: %w", rootDir, err)
	}

	var cfg *config.Config
	if configPath := c.String("config"); configPath != "" {
		cfg, err = config.LoadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config %s: %w", configPath, err)
		}
		if c.IsSet("root") {
			cfg.Dump.Root = absRoot
		}
	} else {
		cfg, err = config.Load(absRoot)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", absRoot, err)
		}
	}

	// Apply CLI flag overrides
	if includeFlags := c.StringSlice("include"); len(includeFlags) > 0 {
		cfg.Include = includeFlags
	}
	if excludeFlags := c.StringSlice("exclude"); len(excludeFlags) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludeFlags...)
	}
	if workers := c.Int("workers"); workers > 0 {
		cfg.Performance.Workers = workers
	}
	if cachePath := c.String("cache"); cachePath != "" {
		cfg.Cache.Path = cachePath
	}

	return cfg, nil
}

func main() {
	log.SetFlags(0)

	app := &cli.App{
		Name:                   "lai",
		Usage:                  "Find relationships between actors in byml dump files",
		Version:                version.Version,
		UseShortOptionHandling: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Dump root directory (unzip all .zs files first)",
				Value:   ".",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a .lai.kdl config file (default: <root>/.lai.kdl)",
			},
			&cli.StringSliceFlag{
				Name:  "include",
				Usage: "Include files matching glob patterns (default '**/*.byml')",
			},
			&cli.StringSliceFlag{
				Name:  "exclude",
				Usage: "Exclude files matching glob patterns",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"t"},
				Usage:   "Parallel scan workers (0 = auto)",
			},
			&cli.StringFlag{
				Name:  "cache",
				Usage: "Cache snapshot path (relative to root)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Print diagnostic logging to stderr",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logs to a file under the system temp directory",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") || c.Bool("debug") {
				os.Setenv("DEBUG", "1")
			}
			if c.Bool("debug") {
				if logPath, err := debug.InitDebugLogFile(); err == nil {
					log.Printf("Debug logs: %s", logPath)
				}
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:    "index",
				Aliases: []string{"generate"},
				Usage:   "Generate or incrementally update the actor index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "regenerate",
						Usage: "Discard the cache and rebuild from scratch",
					},
				},
				Action: runIndex,
			},
			{
				Name:      "hash",
				Usage:     "Find the instantiation / relationships for a given actor hash",
				ArgsUsage: "<hash>",
				Action:    runHash,
			},
			{
				Name:      "gyaml",
				Usage:     "Find actor instances / relationships for all instances of a gyaml object",
				ArgsUsage: "<name>",
				Action:    runGyaml,
			},
			{
				Name:   "status",
				Usage:  "Show cache statistics",
				Action: runStatus,
			},
			{
				Name:   "watch",
				Usage:  "Watch the dump root and update the index on changes",
				Action: runWatch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func runIndex(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	engine := indexing.NewEngine(cfg)
	stats, err := engine.Update(c.Context, c.Bool("regenerate"))
	if err != nil {
		return err
	}

	for _, anomaly := range stats.Anomalies {
		if anomaly.Hash != 0 {
			log.Printf("Warning: %s in %s (hash %d): %s", anomaly.Kind, anomaly.Path, anomaly.Hash, anomaly.Detail)
		} else {
			log.Printf("Warning: %s in %s: %s", anomaly.Kind, anomaly.Path, anomaly.Detail)
		}
	}
	log.Printf("Indexed %d new, %d modified, %d removed, %d unchanged files (%d failed)",
		stats.Added, stats.Modified, stats.Removed, stats.Unchanged, stats.Failed)
	log.Printf("%d records (%d orphans) in %v", stats.Records, stats.Orphans, stats.Duration.Round(time.Millisecond))
	return nil
}

// recordJSON mirrors the tool's historical output shape.
type recordJSON struct {
	Hash   uint64   `json:"hash"`
	Gyaml  string   `json:"gyaml,omitempty"`
	Source string   `json:"source,omitempty"`
	Files  []string `json:"files"`
}

func runHash(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: lai hash <hash>")
	}
	hash, err := strconv.ParseUint(c.Args().First(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid hash %q: %w", c.Args().First(), err)
	}

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	idx, _, loadErr := indexing.NewEngine(cfg).Load()
	if loadErr != nil {
		log.Printf("Warning: %v", loadErr)
	}
	if idx.Len() == 0 {
		return fmt.Errorf("no index found; run 'lai index' first")
	}

	rec, ok := idx.Lookup(hash)
	if !ok {
		fmt.Println("null")
		return nil
	}
	return printJSON(recordJSON{
		Hash:   rec.Hash,
		Gyaml:  rec.Gyaml,
		Source: rec.Source,
		Files:  rec.RefList(),
	})
}

func runGyaml(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: lai gyaml <name>")
	}
	name := c.Args().First()

	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	idx, _, loadErr := indexing.NewEngine(cfg).Load()
	if loadErr != nil {
		log.Printf("Warning: %v", loadErr)
	}
	if idx.Len() == 0 {
		return fmt.Errorf("no index found; run 'lai index' first")
	}

	records := idx.LookupGyaml(name)
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, recordJSON{
			Hash:   rec.Hash,
			Gyaml:  rec.Gyaml,
			Source: rec.Source,
			Files:  rec.RefList(),
		})
	}

	if len(out) == 0 {
		for _, suggestion := range idx.Suggest(name, 3) {
			log.Printf("Did you mean %q?", suggestion)
		}
	}
	return printJSON(out)
}

func runStatus(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine := indexing.NewEngine(cfg)
	idx, fps, loadErr := engine.Load()
	if loadErr != nil {
		log.Printf("Warning: %v", loadErr)
	}

	fmt.Println(version.FullInfo())
	fmt.Printf("Dump root:    %s\n", cfg.Dump.Root)
	fmt.Printf("Cache:        %s\n", engine.Store().Path())
	fmt.Printf("Files:        %d\n", len(fps))
	fmt.Printf("Records:      %d\n", idx.Len())
	fmt.Printf("Orphans:      %d\n", idx.OrphanCount())
	fmt.Printf("Gyaml types:  %d\n", len(idx.GyamlNames()))
	return nil
}

func runWatch(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}
	engine := indexing.NewEngine(cfg)

	// Bring the index current before watching.
	stats, err := engine.Update(c.Context, false)
	if err != nil {
		return err
	}
	log.Printf("Index ready: %d records, watching %s", stats.Records, cfg.Dump.Root)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watcher, err := indexing.NewFileWatcher(cfg, func(pending int) {
		stats, err := engine.Update(ctx, false)
		if err != nil {
			log.Printf("Warning: update after %d changes failed: %v", pending, err)
			return
		}
		log.Printf("Updated: +%d ~%d -%d files, %d records",
			stats.Added, stats.Modified, stats.Removed, stats.Records)
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	<-ctx.Done()
	log.Printf("Shutting down")
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
