package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// lineRing keeps the most recent lines written to a log file.
type lineRing struct {
	lines []string
	head  int // next write position
	size  int
}

func (r *lineRing) add(line string) {
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)

	if r.size < len(r.lines) {
		r.size++
	}
}

// ordered returns the buffered lines oldest first.
func (r *lineRing) ordered() []string {
	result := make([]string, r.size)
	start := (r.head - r.size + len(r.lines)) % len(r.lines)

	for i := range r.size {
		result[i] = r.lines[(start+i)%len(r.lines)]
	}

	return result
}

// CappedFile is an append-only log file that is periodically truncated
// to its most recent maxLines lines.
type CappedFile struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	ring     lineRing
	maxLines int
	written  int // lines appended since the last truncation, including retained ones
}

// OpenCappedFile opens or creates the log file at path.
// A maxLines of zero or less disables truncation.
func OpenCappedFile(path string, maxLines int) (*CappedFile, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	w := &CappedFile{
		file:     file,
		path:     path,
		maxLines: maxLines,
	}
	if maxLines > 0 {
		w.ring.lines = make([]string, maxLines)
	}

	return w, nil
}

// Write implements io.Writer.
func (w *CappedFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil || w.maxLines <= 0 {
		return n, err
	}

	for line := range strings.SplitSeq(strings.TrimRight(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}

		w.ring.add(line)
		w.written++

		// Truncate once the file holds twice the cap
		if w.written >= w.maxLines*2 {
			if err := w.truncate(); err != nil {
				return n, fmt.Errorf("failed to truncate log file: %w", err)
			}

			w.written = w.ring.size
		}
	}

	return n, nil
}

// Sync flushes the file to disk.
func (w *CappedFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Sync()
}

// Close closes the underlying file.
func (w *CappedFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.file.Close()
}

// truncate replaces the file with the buffered lines and reopens it for appending.
func (w *CappedFile) truncate() error {
	temp, err := os.CreateTemp(filepath.Dir(w.path), "temp-log-")
	if err != nil {
		return err
	}

	tempPath := temp.Name()

	content := strings.Join(w.ring.ordered(), "\n") + "\n"
	if _, err := temp.WriteString(content); err != nil {
		temp.Close()
		os.Remove(tempPath)

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(tempPath)
		return err
	}

	w.file.Close()

	// Windows refuses to rename over an existing file
	os.Remove(w.path)

	if err := os.Rename(tempPath, w.path); err != nil {
		return err
	}

	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	w.file = file

	return nil
}
