package indexing

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherFlushAfterDebounce(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.DebounceMs = 50

	flushed := make(chan int, 1)
	watcher, err := NewFileWatcher(cfg, func(pending int) {
		select {
		case flushed <- pending:
		default:
		}
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	touch(t, cfg.Dump.Root, "a.byml")
	touch(t, cfg.Dump.Root, "b.byml")

	select {
	case pending := <-flushed:
		assert.GreaterOrEqual(t, pending, 1)
	case <-time.After(5 * time.Second):
		t.Fatal("no flush after debounce window")
	}
}

func TestWatcherCoalescesBurst(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.DebounceMs = 100

	flushes := make(chan int, 16)
	watcher, err := NewFileWatcher(cfg, func(pending int) {
		flushes <- pending
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	abs := filepath.Join(cfg.Dump.Root, "a.byml")
	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(abs, []byte{byte(i)}, 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-flushes:
	case <-time.After(5 * time.Second):
		t.Fatal("no flush after burst")
	}

	// The whole burst lands in one flush; a second one may only come from
	// events that raced past the first window.
	time.Sleep(300 * time.Millisecond)
	assert.LessOrEqual(t, len(flushes), 1)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	cfg := testConfig(t)
	cfg.Watch.DebounceMs = 50

	flushed := make(chan int, 16)
	watcher, err := NewFileWatcher(cfg, func(pending int) {
		flushed <- pending
	})
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	defer watcher.Stop()

	dir := filepath.Join(cfg.Dump.Root, "Banc")
	require.NoError(t, os.Mkdir(dir, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(100 * time.Millisecond)
	touch(t, cfg.Dump.Root, "Banc/A-1.byml")

	select {
	case <-flushed:
	case <-time.After(5 * time.Second):
		t.Fatal("no flush for file in newly created directory")
	}
}

func TestWatcherStartStop(t *testing.T) {
	cfg := testConfig(t)
	watcher, err := NewFileWatcher(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, watcher.Start())
	assert.NoError(t, watcher.Stop())
}
