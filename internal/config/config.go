package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the KDL config looked up in the dump root.
const ConfigFileName = ".lai.kdl"

type Config struct {
	Version     int
	Dump        Dump
	Cache       Cache
	Performance Performance
	Watch       Watch
	Include     []string
	Exclude     []string
}

type Dump struct {
	Root string
	Name string
}

type Cache struct {
	Path string // snapshot path; relative paths resolve against Dump.Root
}

type Performance struct {
	Workers int // parallel scan workers, 0 = auto-detect (NumCPU)
}

type Watch struct {
	DebounceMs int // debounce window for file change events
}

// Load reads configuration for the given dump root: defaults, overlaid by
// a .lai.kdl in the root when present.
func Load(rootDir string) (*Config, error) {
	cfg := Default(rootDir)

	kdlCfg, err := LoadKDL(rootDir)
	if err != nil {
		return nil, err
	}
	if kdlCfg != nil {
		cfg = kdlCfg
	}
	return cfg, nil
}

// Default returns the built-in configuration for a dump root.
func Default(rootDir string) *Config {
	if rootDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			rootDir = cwd
		} else {
			rootDir = "."
		}
	}

	return &Config{
		Version: 1,
		Dump: Dump{
			Root: rootDir,
		},
		Cache: Cache{
			Path: ".lai.cache",
		},
		Performance: Performance{
			Workers: 0, // auto-detect
		},
		Watch: Watch{
			DebounceMs: 300,
		},
		Include: []string{
			"**/*.byml",
		},
		Exclude: []string{
			// Hidden directories (cache files, VCS metadata)
			"**/.*/**",
			// Still-compressed archives; decompression is out of scope
			"**/*.zs",
			"**/*.zip",
		},
	}
}

// WorkerCount resolves the effective scan worker count.
func (c *Config) WorkerCount() int {
	if c.Performance.Workers > 0 {
		return c.Performance.Workers
	}
	return runtime.NumCPU()
}

// CachePath resolves the snapshot path against the dump root.
func (c *Config) CachePath() string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(c.Dump.Root, c.Cache.Path)
}
