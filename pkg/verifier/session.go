package verifier

import "github.com/l3aro/bpf-verify/pkg/variable"

// Session owns the variable registry of one analysis. Values of different
// sessions must never be mixed.
type Session struct {
	reg *variable.Registry
}

// NewSession returns a session with a fresh registry.
func NewSession() *Session {
	return &Session{reg: variable.NewRegistry()}
}

// Registry returns the session's variable registry.
func (s *Session) Registry() *variable.Registry { return s.reg }

// Close drops every variable interned during the session.
func (s *Session) Close() { s.reg.Reset() }

// WithSession runs fn inside a new session and closes it afterwards, also
// when fn panics.
func WithSession(fn func(*Session) error) error {
	s := NewSession()
	defer s.Close()
	return fn(s)
}
