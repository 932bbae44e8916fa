package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the claims carried by huddle identity tokens.
type Payload struct {
	// StandardClaims embeds the expiry, issued-at and issuer fields.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the persistent user identifier.
	ID string `json:"id"`

	// Username is the unique login name, which is also the identity asserted on sockets.
	Username string `json:"username"`
}
