package remote

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// staleSkew treats a credential as stale slightly before its real expiry so
// a request never leaves with a token that dies in flight.
const staleSkew = 30 * time.Second

// Credential is a time-limited token issued by the catalog service.
type Credential struct {
	Token  string
	Expiry time.Time
}

// Authenticator exchanges the configured API key for a fresh credential.
type Authenticator interface {
	Authenticate(ctx context.Context) (Credential, error)
}

// Session holds the process-wide mutable credential. Whichever stage detects
// staleness refreshes it; refreshes are serialized but not storm-protected.
type Session struct {
	mu   sync.Mutex
	auth Authenticator
	cred Credential
	now  func() time.Time
}

func NewSession(auth Authenticator) *Session {
	return &Session{auth: auth, now: time.Now}
}

// Token returns a fresh token, re-authenticating first if the current one is
// stale or missing.
func (s *Session) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stale() {
		if err := s.refresh(ctx); err != nil {
			return "", err
		}
	}
	return s.cred.Token, nil
}

// Invalidate drops the current credential so the next Token call
// re-authenticates. Called when a stage observes an auth-expired response.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
}

func (s *Session) stale() bool {
	return s.cred.Token == "" || !s.cred.Expiry.After(s.now().Add(staleSkew))
}

func (s *Session) refresh(ctx context.Context) error {
	cred, err := s.auth.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("refresh credential: %w", err)
	}
	s.cred = cred
	return nil
}
