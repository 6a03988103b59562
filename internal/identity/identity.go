package identity

import (
	"errors"
	"strings"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleXerox   Role = "xerox"
	RoleAdmin   Role = "admin"
)

var ErrNoSession = errors.New("no session for token")

type Session struct {
	UserID string
	Email  string
	Role   Role
}

// Staff reports whether the session may act on orders it does not own.
func (s *Session) Staff() bool {
	return s.Role == RoleXerox || s.Role == RoleAdmin
}

// Provider resolves bearer tokens to sessions. The real implementation lives
// in the external identity platform; everything here programs against this
// interface.
type Provider interface {
	Session(token string) (*Session, error)
}

type StaticProvider struct {
	sessions map[string]Session
}

// NewStaticProvider parses a comma-separated list of
// token:userID:email:role entries. Malformed entries are skipped.
func NewStaticProvider(spec string) *StaticProvider {
	p := &StaticProvider{sessions: make(map[string]Session)}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 4 {
			continue
		}
		p.sessions[parts[0]] = Session{
			UserID: parts[1],
			Email:  parts[2],
			Role:   Role(parts[3]),
		}
	}
	return p
}

func (p *StaticProvider) Add(token string, s Session) {
	p.sessions[token] = s
}

func (p *StaticProvider) Session(token string) (*Session, error) {
	s, ok := p.sessions[token]
	if !ok {
		return nil, ErrNoSession
	}
	return &s, nil
}
