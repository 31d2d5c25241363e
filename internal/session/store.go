// Package session implements the sharded, concurrent subscriber
// session store: CRUD operations, a background expirer, and a
// rate-limited graceful drain performed at shutdown.
package session

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"pgw-gateway/internal/cdr"
	"pgw-gateway/internal/ie"
)

const (
	shardCount     = 16
	updateDebounce = 500 * time.Millisecond
	expirerTick    = 250 * time.Millisecond
)

// Session is a subscriber's live attach state.
type Session struct {
	IMSI         ie.IMSI
	LastActivity time.Time
}

type shard struct {
	mu       sync.RWMutex
	sessions map[ie.IMSI]Session
}

// Store is the sharded session map. Session_Timeout and
// GracefulShutdownRate are read atomically by the expirer and drain
// so hot-reload is visible on their very next tick.
type Store struct {
	shards [shardCount]*shard

	sessionTimeoutSec    *atomic.Uint64
	gracefulShutdownRate *atomic.Uint64

	blacklist map[ie.IMSI]struct{}
	cdrLog    *cdr.Journal
	logger    *log.Logger

	stop          chan struct{}
	expirerDone   chan struct{}
	lastBlacklist atomic.Pointer[ie.IMSI]
	lastNotFound  atomic.Pointer[ie.IMSI]
}

// New creates the store and starts its background expirer goroutine.
func New(sessionTimeoutSec, gracefulShutdownRate *atomic.Uint64, cdrLog *cdr.Journal, blacklist map[ie.IMSI]struct{}, logger *log.Logger) *Store {
	s := &Store{
		sessionTimeoutSec:    sessionTimeoutSec,
		gracefulShutdownRate: gracefulShutdownRate,
		blacklist:            blacklist,
		cdrLog:               cdrLog,
		logger:               logger,
		stop:                 make(chan struct{}),
		expirerDone:          make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{sessions: make(map[ie.IMSI]Session)}
	}

	logger.Debug("Session storage created")
	go s.expire()
	return s
}

func (s *Store) shardFor(id ie.IMSI) *shard {
	h := fnv.New64a()
	h.Write([]byte(id))
	return s.shards[h.Sum64()%shardCount]
}

// Create inserts a new session, rejecting blacklisted IMSIs and
// delegating to Update if one already exists for this IMSI.
func (s *Store) Create(id ie.IMSI, sess Session) bool {
	if _, blocked := s.blacklist[id]; blocked {
		if last := s.lastBlacklist.Load(); last == nil || *last != id {
			s.cdrLog.Write(id, "rejected, IMSI blacklisted")
			s.logger.Debugf("Create session rejected: IMSI %s blacklisted", id)
			s.lastBlacklist.Store(&id)
		}
		return false
	}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; exists {
		return s.updateLocked(sh, id)
	}

	sh.sessions[id] = sess
	s.logger.Debugf("Create session success for IMSI %s", id)
	s.cdrLog.Write(id, "created")
	return true
}

// Read copies out the session for id, if any.
func (s *Store) Read(id ie.IMSI) (Session, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	if sess, ok := sh.sessions[id]; ok {
		s.logger.Debugf("Find session for IMSI %s success", id)
		return sess, true
	}

	if last := s.lastNotFound.Load(); last == nil || *last != id {
		s.logger.Debugf("Can't find session for IMSI %s", id)
		s.lastNotFound.Store(&id)
	}
	return Session{}, false
}

// Update refreshes last_activity if at least updateDebounce has
// elapsed since the previous update; otherwise it reports failure
// without writing a CDR row.
func (s *Store) Update(id ie.IMSI, _ Session) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return s.updateLocked(sh, id)
}

func (s *Store) updateLocked(sh *shard, id ie.IMSI) bool {
	existing, ok := sh.sessions[id]
	if !ok {
		s.logger.Debugf("Attempt to update session for IMSI %s which not exist", id)
		return false
	}

	now := time.Now()
	if now.Sub(existing.LastActivity) < updateDebounce {
		return false
	}

	existing.LastActivity = now
	sh.sessions[id] = existing
	s.cdrLog.Write(id, "updated")
	s.logger.Debugf("Successful update for IMSI %s", id)
	return true
}

// Delete removes a session manually, reporting whether one existed.
func (s *Store) Delete(id ie.IMSI) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s.logger.Debugf("Attempt to delete session for IMSI %s", id)
	s.cdrLog.Write(id, "delete_session_manually")

	if _, ok := sh.sessions[id]; !ok {
		return false
	}
	delete(sh.sessions, id)
	return true
}

func (s *Store) expire() {
	s.logger.Debug("Session storage cleanup thread started")
	ticker := time.NewTicker(expirerTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.logger.Debug("Session storage cleanup thread stopped")
			close(s.expirerDone)
			return
		case <-ticker.C:
			timeout := time.Duration(s.sessionTimeoutSec.Load()) * time.Second
			now := time.Now()
			for _, sh := range s.shards {
				sh.mu.Lock()
				for id, sess := range sh.sessions {
					if now.Sub(sess.LastActivity) >= timeout {
						s.logger.Debugf("Session with IMSI %s deleted on timeout", id)
						s.cdrLog.Write(id, "delete_session_on_timeout")
						delete(sh.sessions, id)
					}
				}
				sh.mu.Unlock()
			}
		}
	}
}

// Close stops the expirer, waits for it to exit, then performs the
// rate-limited graceful drain of every remaining session — mirroring
// the original's destructor, which joins the cleanup thread before
// calling delete_sessions_gracefully.
func (s *Store) Close() {
	close(s.stop)
	<-s.expirerDone
	s.drainGracefully()
}

func (s *Store) drainGracefully() {
	s.logger.Debug("Session storage gracefull offload started")

	for _, sh := range s.shards {
		sh.mu.Lock()
		for id := range sh.sessions {
			s.logger.Debugf("Session with IMSI %s deleted on offload", id)
			s.cdrLog.Write(id, "delete_session_on_offload")
			delete(sh.sessions, id)

			if len(sh.sessions) > 0 {
				rate := s.gracefulShutdownRate.Load()
				if rate == 0 {
					rate = 1
				}
				sh.mu.Unlock()
				time.Sleep(time.Second / time.Duration(rate))
				sh.mu.Lock()
			}
		}
		sh.mu.Unlock()
	}

	s.logger.Debug("Session storage gracefull offload end")
}
