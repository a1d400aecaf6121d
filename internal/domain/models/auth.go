package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload accepted by the tree server. Tokens minted by
// Supabase Auth carry the role claim; self-signed tokens may omit it.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"` // "authenticated" or "anon"
}

// GetUserID returns the user ID from the JWT subject claim.
func (c *Claims) GetUserID() string {
	return c.Subject
}
