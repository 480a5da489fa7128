package jwt

import (
	"time"

	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims holds the registered claims the gateway looks at.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	JWTID     string
}

// claimsFromToken copies the registered claims out of a parsed token.
func claimsFromToken(tok jwxjwt.Token) *Claims {
	return &Claims{
		Issuer:    tok.Issuer(),
		Subject:   tok.Subject(),
		Audience:  tok.Audience(),
		ExpiresAt: tok.Expiration(),
		IssuedAt:  tok.IssuedAt(),
		JWTID:     tok.JwtID(),
	}
}

// IsExpired reports whether the claims are expired at now, allowing skew.
// A token is valid strictly before exp + skew.
func (c *Claims) IsExpired(now time.Time, skew time.Duration) bool {
	return !now.Before(c.ExpiresAt.Add(skew))
}
