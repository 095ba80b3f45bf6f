package log

import (
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends protocol events to a capture file readable with
// Reader (and the pvlog tool). Safe for concurrent use.
type FileLogger struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *cbor.Encoder
	writeErr error
	closed   bool
}

// NewFileLogger opens (or creates) the capture file at path. Existing
// captures are appended to, never truncated.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{file: f, encoder: NewEncoder(f)}, nil
}

// Log appends one event. Write errors never disrupt the caller; the
// first one is reported by Close.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.encoder.Encode(event); err != nil && l.writeErr == nil {
		l.writeErr = err
	}
}

// Close flushes and closes the capture file, returning the first write
// error encountered. Close is idempotent; events logged afterwards are
// dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	err := l.file.Close()
	if l.writeErr != nil {
		return l.writeErr
	}
	return err
}

var _ Logger = (*FileLogger)(nil)
