// Package indexing drives the incremental index maintenance protocol:
// enumerate the dump, classify files against the stored fingerprint table,
// retract stale contributions, scan changed files in parallel, and commit
// the updated snapshot atomically.
package indexing

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/lai/internal/byml"
	"github.com/standardbeagle/lai/internal/cache"
	"github.com/standardbeagle/lai/internal/config"
	"github.com/standardbeagle/lai/internal/debug"
	"github.com/standardbeagle/lai/internal/index"
	"github.com/standardbeagle/lai/internal/scanner"
)

// Engine owns one dump root's index lifecycle.
type Engine struct {
	cfg         *config.Config
	store       *cache.Store
	fileScanner *FileScanner
}

// NewEngine creates an engine for the configured dump root.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		cfg:         cfg,
		store:       cache.NewStore(cfg.CachePath()),
		fileScanner: NewFileScanner(cfg),
	}
}

// Store exposes the cache store (status command, tests).
func (e *Engine) Store() *cache.Store {
	return e.store
}

// Load returns a read-only view of the committed snapshot for queries.
func (e *Engine) Load() (*index.Index, cache.FingerprintTable, error) {
	return e.store.Load()
}

// Update runs the incremental maintenance protocol. With regenerate set, the
// stored state is discarded and every file is treated as added. A failed or
// cancelled run commits nothing; the prior snapshot stays visible.
func (e *Engine) Update(ctx context.Context, regenerate bool) (*UpdateStats, error) {
	start := time.Now()
	stats := &UpdateStats{}

	idx, fps, loadErr := e.store.Load()
	if loadErr != nil {
		// Fail closed: corrupt or unreadable snapshots regenerate from empty.
		log.Printf("Warning: ignoring stored cache: %v", loadErr)
	}
	if regenerate {
		idx = index.New()
		fps = make(cache.FingerprintTable)
	}

	entries, err := e.fileScanner.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("cannot enumerate dump root %s: %w", e.cfg.Dump.Root, err)
	}

	tasks, retract := e.classify(entries, fps, stats)

	// Batched retraction: all modified and removed contributions leave the
	// index in one sweep before any rescan merges land.
	idx.Retract(retract)
	onDisk := pathsOf(entries)
	for rel := range retract {
		if _, ok := onDisk[rel]; !ok {
			delete(fps, rel)
		}
	}

	if err := e.scanAndMerge(ctx, tasks, idx, fps, stats); err != nil {
		return nil, err
	}

	if err := e.store.Save(idx, fps); err != nil {
		return nil, err
	}

	stats.Records = idx.Len()
	stats.Orphans = idx.OrphanCount()
	stats.Duration = time.Since(start)
	debug.LogIndexing("update complete: +%d ~%d -%d =%d files, %d records (%d orphans) in %v\n",
		stats.Added, stats.Modified, stats.Removed, stats.Unchanged,
		stats.Records, stats.Orphans, stats.Duration)
	return stats, nil
}

// classify sorts the enumerated files into unchanged / added / modified and
// finds removed fingerprint entries. The stat pair short-circuits unchanged
// files; when only the stat pair moved, the content hash decides (a
// hash-equal file just refreshes its stored stat pair).
func (e *Engine) classify(entries []FileEntry, fps cache.FingerprintTable, stats *UpdateStats) (tasks []FileTask, retract map[string]struct{}) {
	retract = make(map[string]struct{})
	current := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		current[entry.Rel] = struct{}{}

		prior, known := fps[entry.Rel]
		if !known {
			stats.Added++
			tasks = append(tasks, FileTask{Entry: entry})
			continue
		}
		if prior.StatMatches(entry.Info) {
			stats.Unchanged++
			continue
		}

		// Stat moved; only a content compare can tell touched from changed.
		content, err := os.ReadFile(entry.Abs)
		if err == nil {
			fp := cache.Compute(content, entry.Info)
			if fp.Hash == prior.Hash {
				fps[entry.Rel] = fp // refresh the stat pair, skip the rescan
				stats.Unchanged++
				continue
			}
		}

		stats.Modified++
		retract[entry.Rel] = struct{}{}
		tasks = append(tasks, FileTask{Entry: entry})
	}

	for rel := range fps {
		if _, ok := current[rel]; !ok {
			stats.Removed++
			retract[rel] = struct{}{}
		}
	}
	return tasks, retract
}

// scanAndMerge runs the parallel scan pipeline: a producer feeds tasks, a
// bounded worker pool decodes and scans, and every result funnels through a
// single integrator goroutine that owns all index and fingerprint mutation.
func (e *Engine) scanAndMerge(ctx context.Context, tasks []FileTask, idx *index.Index, fps cache.FingerprintTable, stats *UpdateStats) error {
	if len(tasks) == 0 {
		return ctx.Err()
	}

	taskBuffer, resultBuffer := calculateChannelBuffers(len(tasks))
	taskChan := make(chan FileTask, taskBuffer)
	resultChan := make(chan ScannedFile, resultBuffer)

	workers := e.cfg.WorkerCount()
	if workers > len(tasks) {
		workers = len(tasks)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(taskChan)
		for _, task := range tasks {
			select {
			case taskChan <- task:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var wg errgroup.Group
	for i := 0; i < workers; i++ {
		workerID := i
		wg.Go(func() error {
			return e.scanWorker(gctx, workerID, taskChan, resultChan)
		})
	}
	g.Go(func() error {
		defer close(resultChan)
		return wg.Wait()
	})

	// Single-writer integrator: merges are serialized here, so the index
	// needs no locking during a run.
	g.Go(func() error {
		for scanned := range resultChan {
			if scanned.Err != nil {
				// Decode failures exclude the file from this run; without a
				// fingerprint entry it is retried as added next run.
				log.Printf("Warning: unable to parse document %s: %v", scanned.Rel, scanned.Err)
				delete(fps, scanned.Rel)
				stats.Failed++
				stats.Anomalies = append(stats.Anomalies, scanner.Anomaly{
					Kind:   scanner.AnomalyDecodeFailure,
					Path:   scanned.Rel,
					Detail: scanned.Err.Error(),
				})
				continue
			}

			stats.Anomalies = append(stats.Anomalies, scanned.Result.Anomalies...)
			stats.Anomalies = append(stats.Anomalies, idx.Merge(scanned.Rel, scanned.Result)...)
			fps[scanned.Rel] = cache.Fingerprint{
				Hash:  scanned.Hash,
				Size:  scanned.Size,
				MTime: scanned.MTime,
			}
			debug.LogIndexing("merged %s: %d definitions, %d occurrences in %v\n",
				scanned.Rel, len(scanned.Result.Definitions), len(scanned.Result.Occurrences), scanned.Elapsed)
		}
		return nil
	})

	return g.Wait()
}

// scanWorker reads, decodes, and scans files from the task channel.
func (e *Engine) scanWorker(ctx context.Context, workerID int, taskChan <-chan FileTask, resultChan chan<- ScannedFile) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task, ok := <-taskChan:
			if !ok {
				return nil
			}

			scanned := e.scanFile(task)
			select {
			case resultChan <- scanned:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (e *Engine) scanFile(task FileTask) ScannedFile {
	start := time.Now()
	entry := task.Entry
	scanned := ScannedFile{Rel: entry.Rel}

	content, err := os.ReadFile(entry.Abs)
	if err != nil {
		scanned.Err = err
		scanned.Elapsed = time.Since(start)
		return scanned
	}

	// Re-stat after the read so the stored stat pair matches the content we
	// actually scanned.
	info, err := os.Stat(entry.Abs)
	if err != nil {
		info = entry.Info
	}
	fp := cache.Compute(content, info)
	scanned.Hash = fp.Hash
	scanned.Size = fp.Size
	scanned.MTime = fp.MTime

	root, err := byml.Decode(content)
	if err != nil {
		scanned.Err = err
		scanned.Elapsed = time.Since(start)
		return scanned
	}

	scanned.Result = scanner.Scan(root, entry.Rel)
	scanned.Elapsed = time.Since(start)
	return scanned
}

func pathsOf(entries []FileEntry) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		set[e.Rel] = struct{}{}
	}
	return set
}
