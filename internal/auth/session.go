package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/gosuda/dossier/internal/domain"
)

// Session tracks who is signed in on one connection and tells listeners
// when that changes. A session signs itself out when its token expires.
type Session struct {
	secret string

	mu        sync.Mutex
	actor     *domain.Actor
	listeners []func(*domain.Actor)
	expiry    *time.Timer
}

func NewSession(secret string) *Session {
	return &Session{secret: secret}
}

// CurrentActor returns the signed-in actor, or nil.
func (s *Session) CurrentActor() *domain.Actor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.actor == nil {
		return nil
	}
	a := *s.actor
	return &a
}

// OnChange registers cb to run after every sign-in or sign-out with the new
// actor (nil when signed out).
func (s *Session) OnChange(cb func(*domain.Actor)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, cb)
}

// SignIn validates token and makes its actor current.
func (s *Session) SignIn(token string) (domain.Actor, error) {
	claims, err := ValidateToken(s.secret, token)
	if err != nil {
		return domain.Actor{}, fmt.Errorf("auth.Session.SignIn: %w", err)
	}
	actor := claims.Actor()

	s.mu.Lock()
	s.stopExpiryLocked()
	s.actor = &actor
	if claims.ExpiresAt != nil {
		s.expiry = time.AfterFunc(time.Until(claims.ExpiresAt.Time), s.SignOut)
	}
	s.mu.Unlock()

	s.notify(&actor)
	return actor, nil
}

// SignOut clears the current actor. Signing out twice notifies once.
func (s *Session) SignOut() {
	s.mu.Lock()
	if s.actor == nil {
		s.mu.Unlock()
		return
	}
	s.actor = nil
	s.stopExpiryLocked()
	s.mu.Unlock()

	s.notify(nil)
}

func (s *Session) stopExpiryLocked() {
	if s.expiry != nil {
		s.expiry.Stop()
		s.expiry = nil
	}
}

func (s *Session) notify(actor *domain.Actor) {
	s.mu.Lock()
	listeners := make([]func(*domain.Actor), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, cb := range listeners {
		if actor == nil {
			cb(nil)
			continue
		}
		a := *actor
		cb(&a)
	}
}
