package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
)

// Sink receives exported records. Write may buffer; Flush pushes buffered records out.
type Sink interface {
	Write(ctx context.Context, rec Record) error
	Flush(ctx context.Context) error
	Close() error
}

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *json.Encoder
	c   io.Closer
}

// NewJSONLinesSink writes to w. If w is an io.Closer it is closed by Close.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	buf := bufio.NewWriter(w)
	s := &JSONLinesSink{buf: buf, enc: json.NewEncoder(buf)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

func (s *JSONLinesSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

func (s *JSONLinesSink) Flush(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Flush()
}

func (s *JSONLinesSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.buf.Flush()
	if s.c != nil {
		err = errors.Join(err, s.c.Close())
		s.c = nil
	}
	return err
}

// MultiSink fans every call out to each sink in order, stopping at the first Write or Flush error.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Flush(ctx context.Context) error {
	for _, s := range m {
		if err := s.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
