// Package audit implements the append-only event store that every pipeline
// component reports into. Appends from concurrent workers are serialized
// through a single writer goroutine, which also enforces monotonic
// timestamps per correlation id.
package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type opKind int

const (
	opWrite opKind = iota
	opFlush
	opClear
)

type writeOp struct {
	kind  opKind
	event schemas.LogEvent
	done  chan error
}

// ErrClosed marks a mutation requested after Close.
var ErrClosed = errors.New("audit log is closed")

// Log is the append-only audit log. One instance is constructed per run and
// passed to every component; it is safe for concurrent use, including
// concurrently with Close.
type Log struct {
	path string
	log  *zap.Logger

	ops chan writeOp
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) the audit log at path and starts the writer.
func New(path string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	l := &Log{
		path: path,
		log:  logger.Named("audit"),
		ops:  make(chan writeOp, 256),
	}
	l.wg.Add(1)
	go l.writer(file)
	return l, nil
}

// writer is the single goroutine that touches the file. Serializing here is
// what keeps per-correlation-id timestamps non-decreasing under concurrency.
func (l *Log) writer(file *os.File) {
	defer l.wg.Done()
	defer file.Close()

	lastSeen := make(map[string]time.Time)
	enc := json.NewEncoder(file)

	for op := range l.ops {
		switch op.kind {
		case opWrite:
			event := op.event
			if event.Timestamp.IsZero() {
				event.Timestamp = time.Now().UTC()
			}
			if last, ok := lastSeen[event.CorrelationID]; ok && event.Timestamp.Before(last) {
				event.Timestamp = last
			}
			lastSeen[event.CorrelationID] = event.Timestamp
			if err := enc.Encode(event); err != nil {
				l.log.Error("Failed to append audit event", zap.Error(err))
			}
		case opFlush:
			op.done <- file.Sync()
		case opClear:
			err := file.Truncate(0)
			if err == nil {
				_, err = file.Seek(0, 0)
			}
			lastSeen = make(map[string]time.Time)
			op.done <- err
		}
	}
}

// Record appends one event. The zero Timestamp is filled in by the writer.
// An event recorded after Close is dropped with a warning.
func (l *Log) Record(event schemas.LogEvent) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.log.Warn("Dropping event recorded after close",
			zap.String("operation", string(event.OperationType)))
		return
	}
	l.ops <- writeOp{kind: opWrite, event: event}
}

// Flush blocks until every event recorded so far is durably on disk. After
// Close it is a no-op: the writer drained everything on its way out.
func (l *Log) Flush() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil
	}
	done := make(chan error, 1)
	l.ops <- writeOp{kind: opFlush, done: done}
	return <-done
}

// Clear truncates the log. Intended for explicit operator cleanup only.
func (l *Log) Clear() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	done := make(chan error, 1)
	l.ops <- writeOp{kind: opClear, done: done}
	return <-done
}

// Close drains pending events and stops the writer. Safe to call more than
// once.
func (l *Log) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.ops)
	}
	l.mu.Unlock()
	l.wg.Wait()
	return nil
}

// Path returns the on-disk location of the log file.
func (l *Log) Path() string {
	return l.path
}

// -- Query surface --

// Filter narrows a log query. Zero values match everything.
type Filter struct {
	OperationType schemas.OperationType
	FilePath      string
	CorrelationID string
	Limit         int
}

// GetLogs returns the most recent events matching the filter, oldest first.
func (l *Log) GetLogs(f Filter) ([]schemas.LogEvent, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	matched := events[:0:0]
	for _, e := range events {
		if f.OperationType != "" && e.OperationType != f.OperationType {
			continue
		}
		if f.FilePath != "" && e.FilePath != f.FilePath {
			continue
		}
		if f.CorrelationID != "" && e.CorrelationID != f.CorrelationID {
			continue
		}
		matched = append(matched, e)
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[len(matched)-f.Limit:]
	}
	return matched, nil
}

// SearchLogs returns every event whose message or payload contains query,
// case-insensitively.
func (l *Log) SearchLogs(query string) ([]schemas.LogEvent, error) {
	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)

	var matched []schemas.LogEvent
	for _, e := range events {
		if strings.Contains(strings.ToLower(e.Message), needle) {
			matched = append(matched, e)
			continue
		}
		if len(e.Payload) > 0 {
			raw, err := json.Marshal(e.Payload)
			if err == nil && strings.Contains(strings.ToLower(string(raw)), needle) {
				matched = append(matched, e)
			}
		}
	}
	return matched, nil
}

// GetStatistics aggregates the whole log.
func (l *Log) GetStatistics() (schemas.AuditStatistics, error) {
	events, err := l.readAll()
	if err != nil {
		return schemas.AuditStatistics{}, err
	}

	stats := schemas.AuditStatistics{TotalOperations: len(events)}
	modified := make(map[string]struct{})
	for _, e := range events {
		if e.Success {
			stats.SuccessfulOperations++
		} else {
			stats.FailedOperations++
		}
		if e.OperationType == schemas.OpCodeEdit && e.Success && e.FilePath != "" {
			modified[e.FilePath] = struct{}{}
		}
	}
	stats.FilesModifiedCount = len(modified)
	return stats, nil
}

// Export writes the log to w as a JSON array ("json") or raw lines
// ("jsonl").
func (l *Log) Export(w interface{ Write([]byte) (int, error) }, format string) error {
	events, err := l.readAll()
	if err != nil {
		return err
	}
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	case "jsonl":
		enc := json.NewEncoder(w)
		for _, e := range events {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// readAll flushes pending writes, then decodes the full file. Lines that
// fail to decode are skipped rather than poisoning every query.
func (l *Log) readAll() ([]schemas.LogEvent, error) {
	if err := l.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush audit log: %w", err)
	}
	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log for reading: %w", err)
	}
	defer file.Close()

	var events []schemas.LogEvent
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e schemas.LogEvent
		if err := json.Unmarshal(line, &e); err != nil {
			l.log.Warn("Skipping undecodable audit line", zap.Error(err))
			continue
		}
		events = append(events, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan audit log: %w", err)
	}
	return events, nil
}
