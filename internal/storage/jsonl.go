package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ammledger/internal/model"
)

// JsonlStorage appends event records to a JSONL file. Account snapshots go to
// a separate file and are skipped when no snapshot path is set.
type JsonlStorage struct {
	path         string
	snapshotPath string
	mu           sync.Mutex
}

func NewJsonlStorage(path, snapshotPath string) *JsonlStorage {
	return &JsonlStorage{path: path, snapshotPath: snapshotPath}
}

// PutEventBatch appends a batch of event records as JSON lines.
func (s *JsonlStorage) PutEventBatch(_ context.Context, events []model.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}
	items := make([]interface{}, 0, len(events))
	for _, ev := range events {
		items = append(items, ev)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.path, items)
}

// PutAccountSnapshots appends account snapshots as JSON lines.
func (s *JsonlStorage) PutAccountSnapshots(_ context.Context, snapshots []model.AccountSnapshot) error {
	if len(snapshots) == 0 || s.snapshotPath == "" {
		return nil
	}
	items := make([]interface{}, 0, len(snapshots))
	for _, snap := range snapshots {
		items = append(items, snap)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLines(s.snapshotPath, items)
}

func appendLines(path string, items []interface{}) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, item := range items {
		line, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	return nil
}

// JSONLWriter writes one JSON value per line to a file it owns.
type JSONLWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
}

// NewJSONLWriter opens path for writing, truncating it unless appendMode is set.
func NewJSONLWriter(path string, appendMode bool) (*JSONLWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &JSONLWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (w *JSONLWriter) Write(value interface{}) error {
	line, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.writer.Write(line); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.writer.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
