package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the subset of the backend access token the portal reads.
// The portal never verifies signatures; only the backend can do that.
// Claims are used for cookie lifetimes and session repair, never for authorization.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
	MFA  bool   `json:"mfa,omitempty"`
}
