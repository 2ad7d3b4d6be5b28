package xcross

import (
	"io"
	"iter"
	"sync"
)

// ProgressSignal is the consumer side of an acquisition's progress stream.
// The worker publishes cumulative byte counts as it reads from the network;
// Next hands them out in order. Publishing never blocks, so an unread
// signal cannot stall the transfer. Nothing is coalesced: the queue holds
// one entry per non-empty network read that has not been consumed yet.
type ProgressSignal struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []int64
	closed bool
}

func newProgressSignal() *ProgressSignal {
	s := &ProgressSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Next blocks until the next cumulative byte count is available. It
// returns false once the stream has ended and every update was delivered,
// and keeps returning false afterwards.
func (s *ProgressSignal) Next() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return 0, false
	}
	n := s.queue[0]
	s.queue[0] = 0
	s.queue = s.queue[1:]
	return n, true
}

// All iterates over the remaining updates until end of stream.
func (s *ProgressSignal) All() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		for {
			n, ok := s.Next()
			if !ok || !yield(n) {
				return
			}
		}
	}
}

func (s *ProgressSignal) publish(n int64) {
	s.mu.Lock()
	s.queue = append(s.queue, n)
	s.mu.Unlock()
	s.cond.Signal()
}

func (s *ProgressSignal) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// progressReader reports the running total of bytes read from r and
// remembers the first read failure other than EOF. A single read asks r
// for at most readBufferSize bytes; r may return fewer.
type progressReader struct {
	r      io.Reader
	signal *ProgressSignal
	total  int64
	err    error
}

func (p *progressReader) Read(buf []byte) (int, error) {
	if len(buf) > readBufferSize {
		buf = buf[:readBufferSize]
	}
	n, err := p.r.Read(buf)
	if n > 0 {
		p.total += int64(n)
		p.signal.publish(p.total)
	}
	if err != nil && err != io.EOF && p.err == nil {
		p.err = err
	}
	return n, err
}
