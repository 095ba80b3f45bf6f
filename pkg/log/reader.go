package log

import (
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events while reading a capture file. Zero-valued
// criteria match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart..TimeEnd is half-open: events at or after TimeStart
	// and strictly before TimeEnd pass.
	TimeStart *time.Time
	TimeEnd   *time.Time

	// PV matches events tagged with this process variable name.
	PV string
}

func (f *Filter) matches(event Event) bool {
	switch {
	case f.ConnectionID != "" && event.ConnectionID != f.ConnectionID:
		return false
	case f.Direction != nil && event.Direction != *f.Direction:
		return false
	case f.Layer != nil && event.Layer != *f.Layer:
		return false
	case f.Category != nil && event.Category != *f.Category:
		return false
	case f.TimeStart != nil && event.Timestamp.Before(*f.TimeStart):
		return false
	case f.TimeEnd != nil && !event.Timestamp.Before(*f.TimeEnd):
		return false
	case f.PV != "" && event.PV != f.PV:
		return false
	}
	return true
}

// Reader streams events out of a capture file one at a time, so large
// captures never need to fit in memory.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens a capture file for reading all events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens a capture file, yielding only events the
// filter accepts.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching event, or io.EOF when the capture is
// exhausted.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			return Event{}, err
		}
		if r.filter.matches(event) {
			return event, nil
		}
	}
}

func (r *Reader) Close() error {
	return r.file.Close()
}
