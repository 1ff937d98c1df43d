package toolserver

import (
	"context"
	"crypto/subtle"
	"sync"

	"github.com/agentcore-dev/agentcore/pkg/fault"
)

// Principal is an authenticated caller.
type Principal struct {
	ID   string
	Role string
}

// Authenticator resolves a bearer token to a principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// TokenAuthenticator maps static API tokens to principals. Comparison
// is constant-time.
type TokenAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]Principal
}

// NewTokenAuthenticator creates an empty token table.
func NewTokenAuthenticator() *TokenAuthenticator {
	return &TokenAuthenticator{tokens: make(map[string]Principal)}
}

// AddToken registers a token for a principal.
func (a *TokenAuthenticator) AddToken(token string, principal Principal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = principal
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, fault.New(fault.KindUnauthorized, "missing authentication token")
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for candidate, principal := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			p := principal
			return &p, nil
		}
	}
	return nil, fault.New(fault.KindUnauthorized, "invalid authentication token")
}

// AnonymousAuthenticator accepts any token as the given role. For
// development and tests only.
type AnonymousAuthenticator struct {
	Role string
}

func (a AnonymousAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	role := a.Role
	if role == "" {
		role = "anonymous"
	}
	return &Principal{ID: "anonymous", Role: role}, nil
}
