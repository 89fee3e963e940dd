// Package tokenauth verifies the bearer token carried by a collaboration
// handshake's token query parameter, returning the (userId, role) identity
// the hub and API layer treat as authoritative.
package tokenauth

import (
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// roleClaim is the custom claim carrying the caller's collaboration role.
const roleClaim = "role"

// JWTVerifier validates HS256-signed tokens minted by this service or a
// trusted issuer sharing the same secret.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
}

// NewJWTVerifier builds a verifier around a shared HMAC secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// NewJWTVerifierWithIssuer builds a verifier that additionally checks the
// token's issuer and audience claims.
func NewJWTVerifierWithIssuer(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer, audience: audience}
}

// GenerateToken mints a signed token for userID carrying role as a custom
// claim, valid for expiration. Used by tests and any trusted internal
// issuer; the collaboration endpoint itself only verifies.
func (v *JWTVerifier) GenerateToken(userID, role string, expiration time.Duration) (string, error) {
	now := time.Now()
	builder := jwt.NewBuilder().
		Subject(userID).
		IssuedAt(now).
		Expiration(now.Add(expiration))

	if v.issuer != "" {
		builder = builder.Issuer(v.issuer)
	}
	if v.audience != "" {
		builder = builder.Audience([]string{v.audience})
	}
	if role != "" {
		builder = builder.Claim(roleClaim, role)
	}

	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Verify parses and validates token, returning the subject as userId and
// the role custom claim (nil if absent).
func (v *JWTVerifier) Verify(token string) (userID *string, role *string, err error) {
	parseOptions := []jwt.ParseOption{jwt.WithKey(jwa.HS256, v.secret)}
	if v.issuer != "" {
		parseOptions = append(parseOptions, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parseOptions = append(parseOptions, jwt.WithAudience(v.audience))
	}

	parsed, err := jwt.Parse([]byte(token), parseOptions...)
	if err != nil {
		return nil, nil, fmt.Errorf("verify token: %w", err)
	}

	subject := parsed.Subject()
	if subject == "" {
		return nil, nil, fmt.Errorf("verify token: missing subject claim")
	}

	if raw, ok := parsed.Get(roleClaim); ok {
		if roleValue, ok := raw.(string); ok && roleValue != "" {
			return &subject, &roleValue, nil
		}
	}
	return &subject, nil, nil
}
