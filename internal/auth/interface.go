package auth

import "cleantree/internal/domain/models"

// JWTVerifier validates bearer tokens. The middleware only depends on this,
// so JWKS and shared-secret verification are interchangeable.
type JWTVerifier interface {
	// VerifyToken validates a JWT token string and returns the parsed claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or
	// has an invalid signature.
	VerifyToken(tokenString string) (*models.Claims, error)

	// Close releases any resources held by the verifier.
	Close() error
}
