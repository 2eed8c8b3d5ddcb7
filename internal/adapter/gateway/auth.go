package gateway

import (
	"crypto/subtle"

	"agentmesh/internal/domain"
	"agentmesh/internal/infra/config"
)

// ClientInfo holds metadata about an authenticated API client.
type ClientInfo struct {
	Name     string
	TenantID string
}

// Authenticator validates bearer tokens and resolves the tenant scope
// they are bound to.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

type authEntry struct {
	token []byte
	info  *ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{entries: make([]authEntry, len(tokens))}
	for i, t := range tokens {
		a.entries[i] = authEntry{
			token: []byte(t.Token),
			info:  &ClientInfo{Name: t.Name, TenantID: t.TenantID},
		}
	}
	return a
}

// Authenticate returns the client info bound to a valid token.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			return e.info, nil
		}
	}
	return nil, domain.ErrAuthInvalid
}

// OpenAuth accepts every request. Development only: the tenant comes
// from the X-Tenant-ID header instead of a token binding.
type OpenAuth struct{}

func (OpenAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "anonymous"}, nil
}

// NewAuthenticator picks the authenticator the config asks for.
func NewAuthenticator(cfg config.AuthConfig) Authenticator {
	if cfg.Type == "static" {
		return NewStaticTokenAuth(cfg.Tokens)
	}
	return OpenAuth{}
}
