package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"raidforge.ai/internal/sim/raid"
)

// JSONLZstdWriter appends JSON lines to hourly zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst under baseDir.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// EventLogger streams raid events to <dataDir>/events.
type EventLogger struct{ w *JSONLZstdWriter }

func NewEventLogger(dataDir string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "events"), "events")}
}

func (l *EventLogger) WriteEvent(ev raid.Event) error { return l.w.Write(ev) }
func (l *EventLogger) Close() error                   { return l.w.Close() }

// ResultEntry is one line of the results log. Exactly one of Completion and
// Failure is set.
type ResultEntry struct {
	Kind       string                 `json:"kind"`
	Completion *raid.CompletionRecord `json:"completion,omitempty"`
	Failure    *raid.FailureRecord    `json:"failure,omitempty"`
}

// ResultLogger writes terminal raid outcomes to <dataDir>/results. It is
// the durable fallback when no index backend is configured.
type ResultLogger struct {
	w      *JSONLZstdWriter
	onErr  func(error)
	errsMu sync.Mutex
	errs   int
}

func NewResultLogger(dataDir string, onErr func(error)) *ResultLogger {
	return &ResultLogger{
		w:     NewJSONLZstdWriter(filepath.Join(dataDir, "results"), "results"),
		onErr: onErr,
	}
}

func (l *ResultLogger) RecordCompletion(rec raid.CompletionRecord) {
	l.write(ResultEntry{Kind: "completion", Completion: &rec})
}

func (l *ResultLogger) RecordFailure(rec raid.FailureRecord) {
	l.write(ResultEntry{Kind: "failure", Failure: &rec})
}

func (l *ResultLogger) write(e ResultEntry) {
	if err := l.w.Write(e); err != nil {
		l.errsMu.Lock()
		l.errs++
		l.errsMu.Unlock()
		if l.onErr != nil {
			l.onErr(err)
		}
	}
}

// Errors reports how many writes have failed.
func (l *ResultLogger) Errors() int {
	l.errsMu.Lock()
	defer l.errsMu.Unlock()
	return l.errs
}

func (l *ResultLogger) Close() error { return l.w.Close() }
