package dist

import (
	"os"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/mkn/maiken/internal/app"
)

// Session is the state a node keeps for one client address.
type Session struct {
	mu      sync.Mutex
	apps    []*app.Application
	pending []app.SourceObject
	objects app.Strings
	// reader streams pending[0] to the client; at most one is open.
	reader *os.File
	// writers receive pushed artifacts, by the sender's file path.
	writers map[string]*os.File
}

func (s *Session) closeReader() {
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeReader()
	for path, w := range s.writers {
		w.Close()
		delete(s.writers, path)
	}
}

// Sessions holds one Session per client address. A session idle for
// longer than the ttl, or pushed out by newer ones beyond the limit, is
// closed and dropped.
type Sessions struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, *Session]
}

func NewSessions(limit int, ttl time.Duration) *Sessions {
	onEvict := func(addr string, s *Session) {
		logrus.Debugf("session %s closed", addr)
		s.close()
	}
	return &Sessions{cache: expirable.NewLRU[string, *Session](limit, onEvict, ttl)}
}

// Get returns the session for addr, creating it on first contact, and
// restarts its idle timer.
func (s *Sessions) Get(addr string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.cache.Get(addr)
	if !ok {
		// an expired entry may linger until the cache sweeps it
		s.cache.Remove(addr)
		sess = &Session{writers: make(map[string]*os.File)}
	}
	s.cache.Add(addr, sess)
	return sess
}

// Remove closes and drops the session for addr.
func (s *Sessions) Remove(addr string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(addr)
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	return s.cache.Len()
}
