package token

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateRoot(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestMintAndVerifyRoundTrip(t *testing.T) {
	pub, priv := generateRoot(t)
	tok, err := Mint(priv, "admin", 24*time.Hour)
	require.NoError(t, err)

	claims, err := Verify(pub, tok)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.False(t, claims.HasTenant)
	require.NotNil(t, claims.ExpiresAt)
}

func TestAttenuationMonotonicity(t *testing.T) {
	pub, priv := generateRoot(t)
	roleToken, err := Mint(priv, "admin", 24*time.Hour)
	require.NoError(t, err)

	claims, err := Verify(pub, roleToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
	assert.False(t, claims.HasTenant)

	agentToken, err := Attenuate(roleToken, "acme", time.Hour)
	require.NoError(t, err)

	agentClaims, err := Verify(pub, agentToken)
	require.NoError(t, err)
	assert.Equal(t, "admin", agentClaims.Role)
	assert.True(t, agentClaims.HasTenant)
	assert.Equal(t, "acme", agentClaims.Tenant)
	// min(exp1=+24h, exp2=+1h) is the tighter of the two
	assert.WithinDuration(t, time.Now().Add(time.Hour), *agentClaims.ExpiresAt, 5*time.Second)

	_, err = Attenuate(agentToken, "globex", time.Hour)
	var tokErr *Error
	require.ErrorAs(t, err, &tokErr)
	assert.Equal(t, ClaimsConflict, tokErr.Kind)
}

func TestVerifyRejectsBadSignature(t *testing.T) {
	pub, priv := generateRoot(t)
	tok, err := Mint(priv, "admin", time.Hour)
	require.NoError(t, err)

	otherPub, _ := generateRoot(t)
	_, err = Verify(otherPub, tok)
	var tokErr *Error
	require.ErrorAs(t, err, &tokErr)
	assert.Equal(t, BadSignature, tokErr.Kind)

	_ = pub
}

func TestVerifyRejectsExpired(t *testing.T) {
	pub, priv := generateRoot(t)
	tok, err := Mint(priv, "admin", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	_, err = Verify(pub, tok)
	var tokErr *Error
	require.ErrorAs(t, err, &tokErr)
	assert.Equal(t, Expired, tokErr.Kind)
}

func TestMintRejectsEmptyRole(t *testing.T) {
	pub, priv := generateRoot(t)
	_, err := Mint(priv, "", time.Hour)
	var tokErr *Error
	require.ErrorAs(t, err, &tokErr)
	assert.Equal(t, Malformed, tokErr.Kind)
	_ = pub
}

func TestAttenuateAgreeingTenantSucceeds(t *testing.T) {
	_, priv := generateRoot(t)
	roleToken, err := Mint(priv, "support_agent", time.Hour)
	require.NoError(t, err)

	once, err := Attenuate(roleToken, "acme", time.Hour)
	require.NoError(t, err)

	// Re-attenuating with the same tenant is allowed (it doesn't
	// contradict any parent claim).
	_, err = Attenuate(once, "acme", 30*time.Minute)
	require.NoError(t, err)
}
