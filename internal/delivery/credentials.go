package delivery

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// EnvCredentials reads the transport token from an environment variable.
// A revoked token is not handed out again until the variable changes.
type EnvCredentials struct {
	Var string

	mu      sync.Mutex
	revoked string
}

func NewEnvCredentials(name string) *EnvCredentials {
	return &EnvCredentials{Var: name}
}

func (c *EnvCredentials) Token(_ context.Context, _ bool) (string, error) {
	v := os.Getenv(c.Var)
	if v == "" {
		return "", fmt.Errorf("delivery: %s is not set", c.Var)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if v == c.revoked {
		return "", fmt.Errorf("delivery: token in %s was rejected", c.Var)
	}
	return v, nil
}

func (c *EnvCredentials) Revoke(_ context.Context, token string) error {
	if token == "" {
		return nil
	}
	c.mu.Lock()
	c.revoked = token
	c.mu.Unlock()
	return nil
}
