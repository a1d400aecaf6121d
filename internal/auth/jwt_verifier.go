package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"cleantree/internal/domain"
	"cleantree/internal/domain/models"
)

// Verifier implements JWTVerifier with either a JWKS endpoint or a shared
// HMAC secret.
type Verifier struct {
	keyfunc jwt.Keyfunc
	algs    []string
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// NewVerifier picks the verification mode from the configuration. It
// returns nil when neither a JWKS URL nor a secret is set, meaning auth is
// disabled.
func NewVerifier(jwksURL, secret string, logger *slog.Logger) (JWTVerifier, error) {
	var (
		v   *Verifier
		err error
	)
	switch {
	case jwksURL != "":
		v, err = NewJWKSVerifier(jwksURL, logger)
	case secret != "":
		v, err = NewSecretVerifier(secret, logger)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// NewJWKSVerifier fetches public keys from a JWKS endpoint. keyfunc caches
// the keys and refreshes them in the background until Close.
func NewJWKSVerifier(jwksURL string, logger *slog.Logger) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "mode", "jwks", "jwks_url", jwksURL)
	return &Verifier{
		keyfunc: jwks.Keyfunc,
		algs:    []string{"RS256", "ES256"},
		cancel:  cancel,
		logger:  logger,
	}, nil
}

// NewSecretVerifier verifies HS256 tokens signed with secret.
func NewSecretVerifier(secret string, logger *slog.Logger) (*Verifier, error) {
	if secret == "" {
		return nil, errors.New("JWT secret cannot be empty")
	}
	key := []byte(secret)

	logger.Info("JWT verifier initialized", "mode", "secret")
	return &Verifier{
		keyfunc: func(*jwt.Token) (any, error) { return key, nil },
		algs:    []string{"HS256"},
		cancel:  func() {},
		logger:  logger,
	}, nil
}

// VerifyToken validates a JWT token and extracts its claims
func (v *Verifier) VerifyToken(tokenString string) (*models.Claims, error) {
	// Pinning the algorithms prevents algorithm confusion attacks
	token, err := jwt.ParseWithClaims(tokenString, &models.Claims{}, v.keyfunc, jwt.WithValidMethods(v.algs))
	if err != nil {
		v.logger.Debug("token parse failed", "error", err)
		return nil, domain.ErrUnauthorized
	}
	if !token.Valid || !slices.Contains(v.algs, token.Method.Alg()) {
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.Claims)
	if !ok {
		v.logger.Error("failed to extract claims from token")
		return nil, domain.ErrUnauthorized
	}
	if claims.Subject == "" {
		v.logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}
	// Reject anonymous Supabase sessions
	if claims.Role == "anon" {
		v.logger.Debug("anonymous token rejected", "user_id", claims.Subject)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}

// Close stops background JWKS refreshes
func (v *Verifier) Close() error {
	v.cancel()
	return nil
}
