// Package journal persists pool events as JSON lines, one event per
// line, append-only.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fluxline/clpool/lib/pool"
)

// Journal implements the pool's Recorder against a JSONL file. The file
// is opened lazily on the first event and appended to if it exists.
type Journal struct {
	path string

	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

func New(path string) *Journal {
	return &Journal{path: path}
}

func (j *Journal) Record(ev pool.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer == nil {
		if err := j.open(); err != nil {
			return err
		}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := j.writer.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if err := j.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (j *Journal) open() error {
	dir := filepath.Dir(j.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}
	file, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	j.file = file
	j.writer = bufio.NewWriter(file)
	return nil
}

// Close flushes buffered events and releases the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.writer == nil {
		return nil
	}
	if err := j.writer.Flush(); err != nil {
		j.file.Close()
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	j.writer = nil
	j.file = nil
	return nil
}

// Read loads every event from a journal file.
func Read(path string) ([]pool.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	var events []pool.Event
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev pool.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("decode journal line %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return events, nil
}
