package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123")

func TestIssueAndValidateLiveToken(t *testing.T) {
	issuer, err := NewIssuer(Config{Secret: testSecret})
	require.NoError(t, err)

	token, sessionID, err := issuer.IssueLiveToken("HI")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	claims, err := issuer.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "HI", claims.Language)
	require.Equal(t, sessionID, claims.ID)
}

func TestValidateTokenRejects(t *testing.T) {
	issuer, err := NewIssuer(Config{Secret: testSecret, TTL: time.Minute})
	require.NoError(t, err)
	token, _, err := issuer.IssueLiveToken("EN")
	require.NoError(t, err)

	other, err := NewIssuer(Config{Secret: []byte("another-secret-of-20b")})
	require.NoError(t, err)
	_, err = other.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	later := *issuer
	later.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = later.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.ValidateToken("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenRejectsOtherAudience(t *testing.T) {
	issuer, err := NewIssuer(Config{Secret: testSecret})
	require.NoError(t, err)

	claims := &LiveClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "kisan-ai",
		Audience:  jwt.ClaimStrings{"admin"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)

	_, err = issuer.ValidateToken(signed)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateConfig(t *testing.T) {
	require.Error(t, ValidateConfig(Config{Secret: []byte("short")}))
	require.Error(t, ValidateConfig(Config{Secret: testSecret, TTL: -time.Second}))
	require.NoError(t, ValidateConfig(Config{Secret: testSecret}))

	t.Setenv("JWT_SECRET", string(testSecret))
	t.Setenv("JWT_TTL", "90s")
	config := NewConfigFromEnv()
	require.Equal(t, 90*time.Second, config.TTL)
	require.Equal(t, testSecret, config.Secret)
}
