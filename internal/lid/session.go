package lid

import (
	"crypto/subtle"
	"sync"
)

// Session is the single authentication state of the device.
//
// There is one session per device, not per connected peer. A failed
// Authenticate clears a previous success.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Session struct {
	credential []byte

	mu            sync.RWMutex
	authenticated bool
}

// NewSession creates an unauthenticated session for the given credential.
func NewSession(credential []byte) *Session {
	c := make([]byte, len(credential))
	copy(c, credential)
	return &Session{credential: c}
}

// Authenticate compares candidate against the credential byte for byte.
// It returns ErrAuthFailed and leaves the session unauthenticated on mismatch.
func (s *Session) Authenticate(candidate []byte) error {
	ok := len(s.credential) > 0 && subtle.ConstantTimeCompare(candidate, s.credential) == 1

	s.mu.Lock()
	s.authenticated = ok
	s.mu.Unlock()

	if !ok {
		return ErrAuthFailed
	}
	return nil
}

// Authenticated reports whether the last Authenticate call succeeded.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Require returns ErrNotAuthenticated unless the session is authenticated.
func (s *Session) Require() error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}
