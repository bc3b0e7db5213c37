package indexing

import (
	"io/fs"
	"runtime"
	"time"

	"github.com/standardbeagle/lai/internal/scanner"
)

// Pipeline configuration constants
const (
	// Base buffer size multipliers (minimum values)
	taskChannelBufferBaseMultiplier   = 8
	resultChannelBufferBaseMultiplier = 16

	// Channel buffer caps to prevent excessive memory usage
	maxTaskChannelBuffer   = 1000
	maxResultChannelBuffer = 2000
)

// calculateChannelBuffers sizes the pipeline channels from CPU count and
// expected workload.
func calculateChannelBuffers(fileCount int) (taskBuffer, resultBuffer int) {
	cpuCount := runtime.NumCPU()

	taskBuffer = max(cpuCount*taskChannelBufferBaseMultiplier, fileCount/20)
	if taskBuffer > maxTaskChannelBuffer {
		taskBuffer = maxTaskChannelBuffer
	}

	// Results may pile up if the integrator is slower than the workers.
	resultBuffer = max(cpuCount*resultChannelBufferBaseMultiplier, fileCount/10)
	if resultBuffer > maxResultChannelBuffer {
		resultBuffer = maxResultChannelBuffer
	}

	return taskBuffer, resultBuffer
}

// FileEntry is one enumerated document file. Rel is the slash-normalized
// path relative to the dump root and is the key used everywhere (records,
// fingerprints, output).
type FileEntry struct {
	Rel  string
	Abs  string
	Info fs.FileInfo
}

// FileTask is a file queued for scanning.
type FileTask struct {
	Entry FileEntry
}

// ScannedFile is the per-file result funneled to the integrator.
type ScannedFile struct {
	Rel     string
	Hash    uint64 // content xxhash
	Size    int64
	MTime   int64
	Result  scanner.Result
	Err     error // decode or read failure; file contributes nothing
	Elapsed time.Duration
}

// UpdateStats summarizes one generation/update run.
type UpdateStats struct {
	Added     int               `json:"added"`
	Modified  int               `json:"modified"`
	Removed   int               `json:"removed"`
	Unchanged int               `json:"unchanged"`
	Failed    int               `json:"failed"`
	Records   int               `json:"records"`
	Orphans   int               `json:"orphans"`
	Anomalies []scanner.Anomaly `json:"anomalies,omitempty"`
	Duration  time.Duration     `json:"duration"`
}

// Touched returns how many files contributed new scan results this run.
func (s *UpdateStats) Touched() int {
	return s.Added + s.Modified
}
