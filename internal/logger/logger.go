package logger

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type Config struct {
	// Path is the log file, opened in append mode with parent directories
	// created as needed. Empty means no file output.
	Path string

	// Echo duplicates every record to EchoTo.
	Echo   bool
	EchoTo io.Writer

	// Verbose enables debug-level records.
	Verbose bool
}

// Logger is a line logger writing through a buffer to an append-only file,
// optionally echoing to a console writer. Close flushes the buffer; records
// logged after Close are lost.
type Logger struct {
	*slog.Logger

	file *os.File
	buf  *bufio.Writer
}

func New(cfg Config) (*Logger, error) {
	l := &Logger{}

	var writers []io.Writer
	if cfg.Path != "" {
		if err := ensureParentDir(cfg.Path); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		l.file = f
		l.buf = bufio.NewWriter(f)
		writers = append(writers, l.buf)
	}
	if cfg.Echo && cfg.EchoTo != nil {
		writers = append(writers, cfg.EchoTo)
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = io.Discard
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	l.Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	return l, nil
}

// Close flushes buffered records and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	flushErr := l.buf.Flush()
	closeErr := l.file.Close()
	l.file = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
