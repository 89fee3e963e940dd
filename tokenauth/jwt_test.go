package tokenauth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTokenAndVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	token, err := v.GenerateToken("user-123", "editor", time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	userID, role, err := v.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, userID)
	assert.Equal(t, "user-123", *userID)
	require.NotNil(t, role)
	assert.Equal(t, "editor", *role)
}

func TestVerifyWithoutRoleClaim(t *testing.T) {
	v := NewJWTVerifier("test-secret")

	token, err := v.GenerateToken("user-456", "", time.Hour)
	require.NoError(t, err)

	userID, role, err := v.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, userID)
	assert.Equal(t, "user-456", *userID)
	assert.Nil(t, role)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("correct-secret")
	token, err := issuer.GenerateToken("user-789", "viewer", time.Hour)
	require.NoError(t, err)

	reader := NewJWTVerifier("wrong-secret")
	_, _, err = reader.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	token, err := v.GenerateToken("user-abc", "editor", -time.Hour)
	require.NoError(t, err)

	_, _, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyWithIssuerAndAudience(t *testing.T) {
	v := NewJWTVerifierWithIssuer("test-secret", "https://issuer.example.com", "https://api.example.com")

	token, err := v.GenerateToken("user-iss", "editor", time.Hour)
	require.NoError(t, err)

	userID, role, err := v.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, userID)
	assert.Equal(t, "user-iss", *userID)
	require.NotNil(t, role)
	assert.Equal(t, "editor", *role)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuer := NewJWTVerifierWithIssuer("test-secret", "https://correct-issuer.example.com", "https://api.example.com")
	token, err := issuer.GenerateToken("user-x", "editor", time.Hour)
	require.NoError(t, err)

	wrongExpectation := NewJWTVerifierWithIssuer("test-secret", "https://wrong-issuer.example.com", "https://api.example.com")
	_, _, err = wrongExpectation.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongAudience(t *testing.T) {
	issuer := NewJWTVerifierWithIssuer("test-secret", "https://issuer.example.com", "https://correct-api.example.com")
	token, err := issuer.GenerateToken("user-y", "editor", time.Hour)
	require.NoError(t, err)

	wrongExpectation := NewJWTVerifierWithIssuer("test-secret", "https://issuer.example.com", "https://wrong-api.example.com")
	_, _, err = wrongExpectation.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	v := NewJWTVerifier("test-secret")
	_, _, err := v.Verify("not-a-jwt")
	assert.Error(t, err)
}

func TestChainVerifierFallsBackToSecondVerifier(t *testing.T) {
	primary := NewJWTVerifier("primary-secret")
	secondary := NewJWTVerifier("secondary-secret")
	chain := NewChainVerifier(primary, secondary)

	token, err := secondary.GenerateToken("user-chain", "editor", time.Hour)
	require.NoError(t, err)

	userID, role, err := chain.Verify(token)
	require.NoError(t, err)
	require.NotNil(t, userID)
	assert.Equal(t, "user-chain", *userID)
	require.NotNil(t, role)
	assert.Equal(t, "editor", *role)
}

func TestChainVerifierReturnsLastErrorWhenAllFail(t *testing.T) {
	chain := NewChainVerifier(NewJWTVerifier("a"), NewJWTVerifier("b"))
	_, _, err := chain.Verify("garbage")
	assert.Error(t, err)
}
