package logger

import (
	"errors"
	"io"
	"sync"
)

var errSinkClosed = errors.New("logger: sink closed")

type line struct {
	data    []byte
	isError bool
}

// sink writes log lines on a background goroutine. Every line goes to out;
// error lines are copied to errOut as well.
type sink struct {
	lines chan line
	flush chan chan error
	done  chan struct{}

	out    []io.Writer
	errOut []io.Writer

	mu     sync.RWMutex
	closed bool

	errMu sync.Mutex
	err   error
}

func newSink(out, errOut []io.Writer) *sink {
	s := &sink{
		lines:  make(chan line, 256),
		flush:  make(chan chan error),
		done:   make(chan struct{}),
		out:    out,
		errOut: errOut,
	}
	go s.loop()
	return s
}

func (s *sink) loop() {
	defer close(s.done)
	for {
		select {
		case l, ok := <-s.lines:
			if !ok {
				return
			}
			s.write(l)
		case ack := <-s.flush:
			s.drain()
			ack <- s.firstErr()
		}
	}
}

func (s *sink) drain() {
	for {
		select {
		case l, ok := <-s.lines:
			if !ok {
				return
			}
			s.write(l)
		default:
			return
		}
	}
}

func (s *sink) write(l line) {
	targets := s.out
	if l.isError {
		targets = append(targets[:len(targets):len(targets)], s.errOut...)
	}
	for _, w := range targets {
		if _, err := w.Write(l.data); err != nil {
			s.setErr(err)
		}
	}
}

// Write queues a copy of p. It blocks when the queue is full rather than
// dropping the line.
func (s *sink) Write(p []byte, isError bool) error {
	if len(p) == 0 {
		return nil
	}
	l := line{data: append([]byte(nil), p...), isError: isError}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}
	s.lines <- l
	return nil
}

// Flush waits until every queued line has been written.
func (s *sink) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return s.firstErr()
	}
	ack := make(chan error, 1)
	s.flush <- ack
	return <-ack
}

// Close drains the queue, stops the goroutine and reports the first write error.
func (s *sink) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.lines)
	}
	s.mu.Unlock()
	<-s.done
	return s.firstErr()
}

func (s *sink) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *sink) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
