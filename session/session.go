// Package session holds the state of one signed-in page session: who is
// signed in, the credential, which peer is selected and the realtime
// channel. A Session is passed to every component instead of living in
// package globals.
package session

import (
	"sync"
	"time"

	"parley/models"

	"github.com/golang-jwt/jwt/v5"
)

// Channel is the part of the realtime connection the session owns.
type Channel interface {
	Close() error
}

// Session is safe for concurrent use.
type Session struct {
	mu         sync.RWMutex
	identity   *models.Identity
	token      string
	expiresAt  time.Time
	selected   int64
	channel    Channel
	generation uint64
}

func New() *Session {
	return &Session{}
}

// Begin records a successful signup/login. Any previous state is dropped,
// including its channel, which is returned for the caller to close.
func (s *Session) Begin(id models.Identity, token string) Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.channel
	s.identity = &id
	s.token = token
	s.expiresAt = tokenExpiry(token)
	s.selected = 0
	s.channel = nil
	s.generation++
	return prev
}

// End clears the session and hands back the channel so the caller can
// close it outside the lock.
func (s *Session) End() Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channel
	s.identity = nil
	s.token = ""
	s.expiresAt = time.Time{}
	s.selected = 0
	s.channel = nil
	s.generation++
	return ch
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity != nil
}

// Identity returns the signed-in user and whether there is one.
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return models.Identity{}, false
	}
	return *s.identity, true
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// ExpiresAt is the token's exp claim, zero when the token carries none.
func (s *Session) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Select makes peerID the active conversation. Zero clears the selection.
func (s *Session) Select(peerID int64) {
	s.mu.Lock()
	s.selected = peerID
	s.mu.Unlock()
}

// Selected returns the active peer id, zero when none.
func (s *Session) Selected() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// AttachChannel stores ch if the session is still at generation gen.
// It reports false when the session moved on (logout or a new login) while
// the channel was being opened; the caller then owns ch and must close it.
func (s *Session) AttachChannel(gen uint64, ch Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.generation != gen || s.channel != nil {
		return false
	}
	s.channel = ch
	return true
}

func (s *Session) Channel() Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channel
}

// ComposerEnabled is true iff a peer is selected and the channel exists.
func (s *Session) ComposerEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected != 0 && s.channel != nil
}

// Generation changes on every Begin and End.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client has no key and only uses it for display.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
