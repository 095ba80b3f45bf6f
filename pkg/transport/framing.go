package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pvaccess-protocol/pva-go/pkg/log"
)

const (
	// LengthPrefixSize is the size of the frame length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a single frame payload (64 KB).
	DefaultMaxMessageSize = 65536

	// MaxLogFrameDataSize caps how much frame data a log event carries.
	// Longer frames are truncated in the event, never on the wire.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameEvent builds the transport-layer log event for one frame.
func frameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frameData := data
	truncated := false
	if len(data) > MaxLogFrameDataSize {
		frameData = data[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      LengthPrefixSize + len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}

// FrameWriter writes length-prefixed frames. Safe for concurrent use;
// each frame is written atomically with respect to other WriteFrame
// calls.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	maxSize uint32

	logger log.Logger
	connID string
}

// NewFrameWriter creates a writer bounded by maxSize payload bytes.
func NewFrameWriter(w io.Writer, maxSize uint32) *FrameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameWriter{w: w, maxSize: maxSize}
}

// SetLogger enables frame logging. Pass nil to disable.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.logger = logger
	fw.connID = connID
}

// WriteFrame writes one length-prefixed frame.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if uint32(len(data)) > fw.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(data), fw.maxSize)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(data)))

	if _, err := fw.w.Write(prefix[:]); err != nil {
		return fmt.Errorf("failed to write length prefix: %w", err)
	}
	if _, err := fw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write payload: %w", err)
	}

	if fw.logger != nil {
		fw.logger.Log(frameEvent(fw.connID, data, log.DirectionOut))
	}
	return nil
}

// FrameReader reads length-prefixed frames. Not safe for concurrent
// use; a connection owns exactly one read loop.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	prefix  [LengthPrefixSize]byte

	logger log.Logger
	connID string
}

// NewFrameReader creates a reader bounded by maxSize payload bytes.
func NewFrameReader(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// SetLogger enables frame logging. Pass nil to disable.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.logger = logger
	fr.connID = connID
}

// ReadFrame reads one frame and returns its payload. A clean peer
// close surfaces as io.EOF; a close mid-frame as ErrFrameTruncated.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read length prefix: %w", err)
	}

	length := binary.BigEndian.Uint32(fr.prefix[:])
	if length == 0 {
		return nil, ErrMessageEmpty
	}
	if length > fr.maxSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, length, fr.maxSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		if err == io.EOF || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrFrameTruncated
		}
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}

	if fr.logger != nil {
		fr.logger.Log(frameEvent(fr.connID, payload, log.DirectionIn))
	}
	return payload, nil
}

// Framer pairs a reader and writer over one bidirectional stream.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer with the default message size bound.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer bounded by maxSize payload bytes.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReader(rw, maxSize),
		FrameWriter: NewFrameWriter(rw, maxSize),
	}
}

// SetLogger enables frame logging on both directions.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}
