package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/levy/internal/auth/domain"
	"github.com/smallbiznis/levy/internal/clock"
	"github.com/smallbiznis/levy/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T, clk clock.Clock) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.Config{AuthJWTSecret: "test-secret", AuthJWTIssuer: "levy-identity"}, clk)
	require.NoError(t, err)
	return v
}

func TestVerifyRoundTrip(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	raw, err := v.Issue(domain.Principal{UserID: "42", Email: "ada@example.com", Role: domain.RoleAuditor}, time.Hour)
	require.NoError(t, err)

	principal, err := v.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "42", principal.UserID)
	assert.Equal(t, domain.RoleAuditor, principal.Role)
}

func TestVerifyRejectsExpired(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	raw, err := v.Issue(domain.Principal{UserID: "42", Role: domain.RoleTaxpayer}, time.Minute)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsForeignIssuerAndSecret(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	other, err := NewVerifier(config.Config{AuthJWTSecret: "other-secret", AuthJWTIssuer: "levy-identity"}, clk)
	require.NoError(t, err)
	raw, err := other.Issue(domain.Principal{UserID: "42", Role: domain.RoleTaxpayer}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	claims := Claims{Role: "taxpayer", RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "42",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour)),
	}}
	raw, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidToken)
}

func TestVerifyRejectsUnknownRole(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	v := newVerifier(t, clk)

	raw, err := v.Issue(domain.Principal{UserID: "42", Role: domain.Role("superuser")}, time.Hour)
	require.NoError(t, err)
	_, err = v.Verify(raw)
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestNewVerifierRequiresSecretInProduction(t *testing.T) {
	_, err := NewVerifier(config.Config{Environment: "production"}, nil)
	assert.ErrorIs(t, err, ErrMissingSecret)
}
