package auth

import "github.com/golang-jwt/jwt/v5"

// Claims identifies a signed-in page owner.
type Claims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	Email        string `json:"email,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	AuthProvider string `json:"auth_provider,omitempty"` // "local", "google"
}

// ClaimsFor builds the claims for an owner.
func ClaimsFor(o *Owner) *Claims {
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: o.ID, Issuer: Issuer},
		UserID:           o.ID,
		Email:            o.Email,
		DisplayName:      o.DisplayName,
		AuthProvider:     o.Provider,
	}
}
