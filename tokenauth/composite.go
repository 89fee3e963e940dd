package tokenauth

// Verifier turns a bearer token into an identity. Implemented by
// JWTVerifier and OIDCVerifier, and by transport.TokenVerifier's expected
// shape at the call site.
type Verifier interface {
	Verify(token string) (userID *string, role *string, err error)
}

// ChainVerifier tries each Verifier in order, returning the first success.
// Used when a deployment accepts both locally-minted HS256 tokens and
// ID tokens from an external provider on the same handshake endpoint.
type ChainVerifier struct {
	verifiers []Verifier
}

// NewChainVerifier builds a ChainVerifier trying verifiers in the given order.
func NewChainVerifier(verifiers ...Verifier) *ChainVerifier {
	return &ChainVerifier{verifiers: verifiers}
}

// Verify returns the first verifier's success. If every verifier rejects
// the token, it returns the last verifier's error.
func (c *ChainVerifier) Verify(token string) (userID *string, role *string, err error) {
	var lastErr error
	for _, v := range c.verifiers {
		userID, role, err = v.Verify(token)
		if err == nil {
			return userID, role, nil
		}
		lastErr = err
	}
	return nil, nil, lastErr
}
