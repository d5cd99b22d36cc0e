package resolver

import (
	"context"

	"auth-gateway/internal/auth"
)

// Resolver determines which local user an authenticated pool identity
// belongs to. It is the only place where identity-to-user mapping lives.
type Resolver interface {
	Resolve(
		ctx context.Context,
		identity *auth.Identity,
	) (userID string, err error)
}
