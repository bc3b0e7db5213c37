package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// LoadKDL attempts to load configuration from a .lai.kdl file in rootDir.
// Returns (nil, nil) when no config file exists.
func LoadKDL(rootDir string) (*Config, error) {
	kdlPath := filepath.Join(rootDir, ConfigFileName)

	if _, err := os.Stat(kdlPath); os.IsNotExist(err) {
		return nil, nil
	}
	return LoadFile(kdlPath)
}

// LoadFile loads configuration from an explicit KDL file path. A relative
// dump root in the file resolves against the file's directory.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %v", path, err)
	}

	cfg, err := parseKDL(string(content))
	if err != nil {
		return nil, err
	}

	baseDir := filepath.Dir(path)
	if cfg.Dump.Root != "" && !filepath.IsAbs(cfg.Dump.Root) {
		cfg.Dump.Root = filepath.Clean(filepath.Join(baseDir, cfg.Dump.Root))
	} else if cfg.Dump.Root == "" {
		if absRoot, err := filepath.Abs(baseDir); err == nil {
			cfg.Dump.Root = absRoot
		} else {
			cfg.Dump.Root = baseDir
		}
	}

	return cfg, nil
}

func parseKDL(content string) (*Config, error) {
	cfg := Default("")
	cfg.Dump.Root = "" // filled by LoadKDL from the config location

	doc, err := kdl.Parse(strings.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse KDL config: %w", err)
	}

	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "dump":
			for _, cn := range n.Children {
				assignSimpleString(cn, "root", func(v string) { cfg.Dump.Root = v })
				assignSimpleString(cn, "name", func(v string) { cfg.Dump.Name = v })
				switch nodeName(cn) {
				case "include":
					if patterns := collectStringArgs(cn); len(patterns) > 0 {
						cfg.Include = patterns
					}
				case "exclude":
					cfg.Exclude = append(cfg.Exclude, collectStringArgs(cn)...)
				}
			}
		case "cache":
			for _, cn := range n.Children {
				assignSimpleString(cn, "path", func(v string) { cfg.Cache.Path = v })
			}
		case "performance":
			for _, cn := range n.Children {
				if nodeName(cn) == "workers" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Performance.Workers = v
					}
				}
			}
		case "watch":
			for _, cn := range n.Children {
				if nodeName(cn) == "debounce_ms" {
					if v, ok := firstIntArg(cn); ok {
						cfg.Watch.DebounceMs = v
					}
				}
			}
		}
	}

	return cfg, nil
}

// Helper functions leveraging the kdl-go document model
func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func assignSimpleString(n *document.Node, target string, set func(string)) {
	if nodeName(n) == target {
		if s, ok := firstStringArg(n); ok {
			set(s)
		}
	}
}

func collectStringArgs(n *document.Node) []string {
	if n == nil {
		return nil
	}
	out := make([]string, 0, len(n.Arguments))
	for _, a := range n.Arguments {
		if s, ok := a.Value.(string); ok {
			out = append(out, s)
		}
	}

	// Block format: exclude { "pattern"; "pattern" } puts each string in a
	// child node's name.
	if len(out) == 0 && len(n.Children) > 0 {
		out = make([]string, 0, len(n.Children))
		for _, child := range n.Children {
			if s, ok := firstStringArg(child); ok {
				out = append(out, s)
			} else if child.Name != nil {
				if s, ok := child.Name.Value.(string); ok {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
