package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultTokenTTL = 5 * time.Minute
	liveAudience    = "live"
	issuer          = "kisan-ai"
)

var ErrInvalidToken = errors.New("invalid live session token")

// LiveClaims represents the claims of a live session token
type LiveClaims struct {
	Language string `json:"lang"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret []byte
	TTL    time.Duration
}

func NewConfigFromEnv() Config {
	config := Config{Secret: []byte(os.Getenv("JWT_SECRET"))}
	if ttl, err := time.ParseDuration(os.Getenv("JWT_TTL")); err == nil {
		config.TTL = ttl
	}
	return config
}

// ValidateConfig validates the Config
func ValidateConfig(config Config) error {
	if len(config.Secret) < 16 {
		return fmt.Errorf("JWT secret must be at least 16 bytes")
	}
	if config.TTL < 0 {
		return fmt.Errorf("token TTL must not be negative")
	}
	return nil
}

// Issuer signs and verifies short-lived tokens for the live voice websocket.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(config Config) (*Issuer, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, err
	}
	if config.TTL == 0 {
		config.TTL = defaultTokenTTL
	}
	return &Issuer{secret: config.Secret, ttl: config.TTL, now: time.Now}, nil
}

// TTL is how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// IssueLiveToken returns a signed token and its session ID.
func (i *Issuer) IssueLiveToken(language string) (string, string, error) {
	now := i.now()
	sessionID := uuid.NewString()
	claims := &LiveClaims{
		Language: language,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{liveAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign live token: %w", err)
	}
	return signed, sessionID, nil
}

// ValidateToken validates a live token and returns the claims
func (i *Issuer) ValidateToken(tokenString string) (*LiveClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LiveClaims{}, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(liveAudience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(*LiveClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}
