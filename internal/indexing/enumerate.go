package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/standardbeagle/lai/internal/config"
	"github.com/standardbeagle/lai/internal/debug"
)

// FileScanner handles dump traversal and document file discovery.
type FileScanner struct {
	config *config.Config

	// Pattern strings (doublestar compiles internally)
	compiledExclusions []string
	compiledInclusions []string
}

// NewFileScanner creates a new file scanner for the configured dump root.
func NewFileScanner(cfg *config.Config) *FileScanner {
	fs := &FileScanner{config: cfg}
	fs.compilePatterns()
	return fs
}

func (fs *FileScanner) compilePatterns() {
	fs.compiledExclusions = make([]string, 0, len(fs.config.Exclude))
	fs.compiledExclusions = append(fs.compiledExclusions, fs.config.Exclude...)

	fs.compiledInclusions = make([]string, 0, len(fs.config.Include))
	fs.compiledInclusions = append(fs.compiledInclusions, fs.config.Include...)
}

// shouldExclude checks if a path matches any exclusion pattern
func (fs *FileScanner) shouldExclude(path string) bool {
	for _, pattern := range fs.compiledExclusions {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			// Bad pattern shouldn't break scanning
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// shouldInclude checks if a path matches any inclusion pattern
func (fs *FileScanner) shouldInclude(path string) bool {
	if len(fs.compiledInclusions) == 0 {
		return true
	}

	for _, pattern := range fs.compiledInclusions {
		matched, err := doublestar.Match(pattern, path)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// Enumerate walks the dump root and returns every matching document file,
// sorted by relative path. Unreadable subtrees are skipped with a debug log;
// only an unreadable root is fatal.
func (fs *FileScanner) Enumerate(ctx context.Context) ([]FileEntry, error) {
	root := fs.config.Dump.Root
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}

	// Track visited directories to prevent infinite loops from symlink cycles
	visitedDirs := make(map[string]bool)

	var entries []FileEntry
	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if walkErr != nil {
			debug.LogIndexing("enumerate error for %s: %v\n", path, walkErr)
			return nil // Continue scanning despite errors
		}

		if info.IsDir() {
			realPath, err := filepath.EvalSymlinks(path)
			if err != nil {
				debug.LogIndexing("skipping unresolvable symlink: %s (%v)\n", path, err)
				return nil
			}
			if visitedDirs[realPath] {
				debug.LogIndexing("cycle detected, skipping already visited: %s -> %s\n", path, realPath)
				return filepath.SkipDir
			}
			visitedDirs[realPath] = true
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			relPath = path
		}
		normalizedPath := filepath.ToSlash(relPath)

		// Early directory pruning - skip entire excluded directories
		if info.IsDir() {
			if path != root && (fs.shouldExclude(normalizedPath) || fs.shouldExclude(normalizedPath+"/")) {
				return filepath.SkipDir
			}
			return nil
		}

		if fs.shouldExclude(normalizedPath) {
			return nil
		}
		if !fs.shouldInclude(normalizedPath) {
			return nil
		}

		entries = append(entries, FileEntry{
			Rel:  normalizedPath,
			Abs:  path,
			Info: info,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Rel < entries[j].Rel })
	debug.LogIndexing("enumerated %d document files under %s\n", len(entries), root)
	return entries, nil
}
