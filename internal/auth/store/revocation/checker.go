package revocation

import (
	"context"
	"time"
)

// List is implemented by every revocation backend.
type List interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Checker adapts a List to the auth middleware's TokenRevocationChecker.
type Checker struct {
	list List
}

func NewChecker(list List) *Checker {
	return &Checker{list: list}
}

func (c *Checker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return c.list.IsRevoked(ctx, jti)
}
