package gateway

import (
	"sync"
	"sync/atomic"
)

// Session is the resumable identity of a gateway connection. The sequence is
// the resume watermark: it advances as each dispatch frame enters processing
// and survives reconnect attempts within the process lifetime.
type Session struct {
	mu        sync.RWMutex
	id        string
	resumeURL string
	sequence  atomic.Uint64
}

// Apply installs a fresh session from a ready payload. The watermark starts
// over; the ready frame's own sequence is stored right after.
func (s *Session) Apply(id, resumeURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.resumeURL = resumeURL
	s.sequence.Store(0)
}

// Clear forgets the session entirely. The next connection identifies from
// scratch.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = ""
	s.resumeURL = ""
	s.sequence.Store(0)
}

func (s *Session) Resumable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id != ""
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) ResumeURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resumeURL
}

func (s *Session) Sequence() uint64 {
	return s.sequence.Load()
}

// StoreSequence keeps the larger value; the watermark never moves backwards.
func (s *Session) StoreSequence(seq uint64) {
	for {
		cur := s.sequence.Load()
		if seq <= cur {
			return
		}
		if s.sequence.CompareAndSwap(cur, seq) {
			return
		}
	}
}
