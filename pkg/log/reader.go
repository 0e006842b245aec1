package log

import (
	"errors"
	"io"
	"iter"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Filter selects events. Zero fields match everything.
type Filter struct {
	ConnectionID string
	Direction    *Direction
	Layer        *Layer
	Category     *Category

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time

	RegionID string

	// Kind matches the request kind (RANGING or MONITORING) carried by
	// request, session and dispatch events. Other events never match.
	Kind string
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
	case f.RegionID != "" && event.RegionID != f.RegionID:
		return false
	case f.Kind != "" && event.Kind() != f.Kind:
		return false
	}
	return true
}

// Kind returns the request kind an event concerns, or "".
func (e Event) Kind() string {
	switch {
	case e.Request != nil:
		return e.Request.Kind
	case e.Dispatch != nil:
		return e.Dispatch.Kind
	case e.Session != nil:
		return e.Session.Path
	}
	return ""
}

// Reader streams events from a log file written by FileLogger.
//
// A daemon killed mid-write leaves a partial record at the end of the
// file. The reader treats it as the end of the log and reports it through
// Truncated.
type Reader struct {
	file      *os.File
	decoder   *cbor.Decoder
	filter    Filter
	read      int
	truncated bool
}

// NewReader opens path for reading all events.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path for reading the events matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching event, or io.EOF at the end of the log.
func (r *Reader) Next() (Event, error) {
	for {
		var event Event
		if err := r.decoder.Decode(&event); err != nil {
			switch {
			case errors.Is(err, io.EOF):
				return Event{}, io.EOF
			case errors.Is(err, io.ErrUnexpectedEOF):
				r.truncated = true
				return Event{}, io.EOF
			}
			return Event{}, err
		}
		r.read++

		if r.filter.matches(event) {
			return event, nil
		}
	}
}

// Events iterates the remaining matching events. Iteration stops after
// the first error, which is yielded with a zero Event.
func (r *Reader) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Read returns the number of events decoded so far, matching or not.
func (r *Reader) Read() int {
	return r.read
}

// Truncated reports whether the log ended in a partial record.
func (r *Reader) Truncated() bool {
	return r.truncated
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}
