package auth

import (
	"github.com/mmynk/susu/internal/models"
)

// Verifier resolves a bearer token to the caller it was issued for.
// Identity is asserted by an external provider; this abstraction lets the RPC layer
// accept its tokens without knowing how they are signed.
type Verifier interface {
	// Verify checks the token and returns the caller's user id and role.
	// Returns ErrInvalidToken if the token is malformed, expired or badly signed.
	Verify(token string) (models.Actor, error)
}

var _ Verifier = (*JWTManager)(nil)
