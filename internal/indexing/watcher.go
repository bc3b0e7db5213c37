package indexing

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/lai/internal/config"
	"github.com/standardbeagle/lai/internal/debug"
)

// FileWatcher monitors the dump root and triggers incremental updates after
// a debounce window. Individual events are not diffed here; the update
// protocol's fingerprint classification already skips unchanged files, so a
// flush simply schedules one Update run.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	config  *config.Config
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	debounce time.Duration
	onFlush  func(pending int)

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewFileWatcher creates a watcher for the configured dump root. onFlush is
// invoked from the watcher goroutine after each quiet period with the number
// of paths that changed.
func NewFileWatcher(cfg *config.Config, onFlush func(pending int)) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FileWatcher{
		watcher:  watcher,
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
		debounce: time.Duration(cfg.Watch.DebounceMs) * time.Millisecond,
		onFlush:  onFlush,
		pending:  make(map[string]struct{}),
	}, nil
}

// Start registers watches over the dump tree and begins processing events.
func (fw *FileWatcher) Start() error {
	if err := fw.addWatches(fw.config.Dump.Root); err != nil {
		fw.watcher.Close()
		return err
	}

	fw.wg.Add(1)
	go fw.processEvents()
	return nil
}

// Stop shuts the watcher down and waits for the event loop to exit.
func (fw *FileWatcher) Stop() error {
	fw.cancel()
	err := fw.watcher.Close()
	fw.wg.Wait()

	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
	return err
}

// addWatches registers every directory under root. fsnotify watches are not
// recursive, so new directories are added as create events arrive.
func (fw *FileWatcher) addWatches(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable subtrees
		}
		if !info.IsDir() {
			return nil
		}
		if base := filepath.Base(path); path != root && len(base) > 1 && base[0] == '.' {
			return filepath.SkipDir // Hidden directories hold no documents
		}
		if err := fw.watcher.Add(path); err != nil {
			debug.LogIndexing("failed to watch %s: %v\n", path, err)
		}
		return nil
	})
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			debug.LogIndexing("watcher error: %v\n", err)
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch before events inside them land.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := fw.addWatches(event.Name); err != nil {
				debug.LogIndexing("failed to watch new directory %s: %v\n", event.Name, err)
			}
			return
		}
	}

	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return // Chmod-only events never change content
	}

	fw.mu.Lock()
	fw.pending[event.Name] = struct{}{}
	if fw.timer == nil {
		fw.timer = time.AfterFunc(fw.debounce, fw.flush)
	} else {
		fw.timer.Reset(fw.debounce)
	}
	fw.mu.Unlock()
}

func (fw *FileWatcher) flush() {
	fw.mu.Lock()
	count := len(fw.pending)
	fw.pending = make(map[string]struct{})
	fw.timer = nil
	fw.mu.Unlock()

	if count == 0 {
		return
	}
	select {
	case <-fw.ctx.Done():
		return
	default:
	}

	debug.LogIndexing("watch flush: %d changed paths\n", count)
	if fw.onFlush != nil {
		fw.onFlush(count)
	}
}
