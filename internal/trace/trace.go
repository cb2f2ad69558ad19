// Package trace persists per-iteration optimization snapshots as JSON
// lines. The loop only emits records; this package owns the on-disk
// format.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/copyleftdev/TALUS/internal/optimization"
)

// Entry is one persisted snapshot. Durations are stored in seconds so the
// file stays readable without Go tooling.
type Entry struct {
	Iteration         int         `json:"iteration"`
	X                 [][]float64 `json:"x"`
	Y                 []float64   `json:"y"`
	Incumbent         []float64   `json:"incumbent"`
	IncumbentValue    float64     `json:"incumbent_value"`
	TimeFunction      float64     `json:"time_function"`
	OptimizerOverhead float64     `json:"optimizer_overhead"`
	Timestamp         time.Time   `json:"timestamp"`
}

// Writer appends entries to <dir>/runs/<runID>/trace.jsonl. Buffered and
// safe for concurrent use. Implements optimization.TraceRecorder.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	path   string
}

// NewWriter creates the run directory and opens the trace file,
// truncating any previous trace for the same run.
func NewWriter(dir, runID string) (*Writer, error) {
	runDir := filepath.Join(dir, "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	path := filepath.Join(runDir, "trace.jsonl")
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}

	return &Writer{
		file:   file,
		writer: bufio.NewWriterSize(file, 64*1024),
		path:   path,
	}, nil
}

// Record persists one loop snapshot as a JSON line.
func (w *Writer) Record(rec optimization.TraceRecord) error {
	entry := Entry{
		Iteration:         rec.Iteration,
		X:                 rec.X,
		Y:                 rec.Y,
		Incumbent:         rec.Incumbent.X,
		IncumbentValue:    rec.Incumbent.Value,
		TimeFunction:      rec.TimeFunction.Seconds(),
		OptimizerOverhead: rec.OptimizerOverhead.Seconds(),
		Timestamp:         time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling trace entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("writing trace entry: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("writing trace entry: %w", err)
	}
	return nil
}

// Flush writes buffered entries through to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flushing trace: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("syncing trace: %w", err)
	}
	return nil
}

// Close flushes and closes the trace file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flushing trace on close: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing trace: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the trace file.
func (w *Writer) Path() string { return w.path }

// ReadAll loads every entry from a run's trace file.
func ReadAll(dir, runID string) ([]Entry, error) {
	path := filepath.Join(dir, "runs", runID, "trace.jsonl")
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var entries []Entry
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("parsing trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	return entries, nil
}
