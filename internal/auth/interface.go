package auth

import "loom/internal/domain/models"

// TokenVerifier validates bearer tokens presented by API callers. The
// middleware stays agnostic to where keys come from; implementations cover
// JWKS-backed production verification and a static dev mode.
type TokenVerifier interface {
	// VerifyToken validates a token string and returns its claims. Returns
	// an error for expired, malformed or wrongly signed tokens.
	VerifyToken(tokenString string) (*models.SessionClaims, error)

	// Close releases verifier resources, e.g. the JWKS refresh client.
	Close() error
}
