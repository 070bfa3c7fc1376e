// Package audit writes a tamper-evident JSONL trail of kill batches. Each
// entry carries the SHA-256 hash of the previous one, so removing or editing
// a line breaks the chain. Rotated files are handled by lumberjack; the chain
// continues across them.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/paolino/mcp-memory-server/internal/logging"
)

var log = logging.L("audit")

// Event types.
const (
	EventProcessKill = "process_kill"
	EventServerStart = "server_start"
	EventServerStop  = "server_stop"
)

// GenesisHash is the prevHash of the first entry written by a Logger.
const GenesisHash = "genesis"

// Entry is a single audit record.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	EventType string         `json:"eventType"`
	BatchID   string         `json:"batchId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	PrevHash  string         `json:"prevHash"`
	EntryHash string         `json:"entryHash"`
}

// Options locate and size the audit file.
type Options struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger appends hash-chained entries. A nil *Logger is a valid no-op.
type Logger struct {
	mu       sync.Mutex
	out      io.WriteCloser
	path     string
	prevHash string
	dropped  atomic.Int64
	now      func() time.Time
}

// NewLogger opens a rotating audit file at opts.Path.
func NewLogger(opts Options) (*Logger, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("audit file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := opts.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	l := NewWithWriter(&lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	})
	l.path = opts.Path

	log.Infow("audit logger started", "path", opts.Path)
	return l, nil
}

// NewWithWriter creates a Logger on an arbitrary sink.
func NewWithWriter(w io.WriteCloser) *Logger {
	return &Logger{
		out:      w,
		prevHash: GenesisHash,
		now:      time.Now,
	}
}

// Path returns the audit file path, or "" for writer-backed loggers.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Log writes one entry. The chain only advances after a successful write.
func (l *Logger) Log(eventType string, batchID string, details map[string]any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		EventType: eventType,
		BatchID:   batchID,
		Details:   details,
		PrevHash:  l.prevHash,
	}

	hash, err := ComputeHash(entry)
	if err != nil {
		log.Errorw("failed to compute audit entry hash", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	entry.EntryHash = hash

	data, err := json.Marshal(entry)
	if err != nil {
		log.Errorw("failed to marshal audit entry", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	data = append(data, '\n')

	if _, err := l.out.Write(data); err != nil {
		log.Errorw("failed to write audit entry", "error", err, "eventType", eventType)
		l.dropped.Add(1)
		return
	}
	l.prevHash = entry.EntryHash
}

// Close closes the underlying sink.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// DroppedCount returns the number of entries that failed to write, or -1
// for a nil logger.
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// ComputeHash hashes an entry without its EntryHash. Fields are
// length-prefixed so no field boundary can be forged.
func ComputeHash(entry Entry) (string, error) {
	h := sha256.New()
	for _, field := range []string{entry.Timestamp, entry.EventType, entry.BatchID, entry.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if entry.Details != nil {
		detailBytes, err := canonicalJSON(entry.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details for hash: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(detailBytes))
		h.Write(detailBytes)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalJSON encodes v with map-sorted keys at every level, so details
// hash the same before writing and after reading back from disk.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// Verify checks that entries form an unbroken chain starting at prev. It
// returns the index of the first bad entry, or -1.
func Verify(entries []Entry, prev string) int {
	for i, e := range entries {
		if e.PrevHash != prev {
			return i
		}
		want := e.EntryHash
		e.EntryHash = ""
		got, err := ComputeHash(e)
		if err != nil || got != want {
			return i
		}
		prev = want
	}
	return -1
}
