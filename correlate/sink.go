package correlate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Sink consumes output records. Implementations must not retain the record
// past the call.
type Sink interface {
	Emit(record any) error
}

// LineSink writes one JSON object per line. Writes go straight to the
// underlying writer so each record is visible as soon as it is emitted.
type LineSink struct {
	w io.Writer
}

// NewLineSink wraps an arbitrary writer, mainly for tests.
func NewLineSink(w io.Writer) *LineSink {
	return &LineSink{w: w}
}

// NewStdoutSink returns the sink feeding the operator-facing stream.
func NewStdoutSink() *LineSink {
	return &LineSink{w: os.Stdout}
}

// Emit marshals the record and writes it followed by a newline.
func (s *LineSink) Emit(record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal output record: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("write output record: %w", err)
	}
	return nil
}

// MultiSink fans each record out to every sink in order, stopping at the
// first failure.
type MultiSink []Sink

// Emit implements Sink.
func (m MultiSink) Emit(record any) error {
	for _, s := range m {
		if err := s.Emit(record); err != nil {
			return err
		}
	}
	return nil
}
