package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
)

// Only HS256 is accepted. Anything else in the header is rejected before
// the key is looked at.
var signingMethod = jwt.SigningMethodHS256

var (
	ErrTokenExpired  = errors.New("token expired")
	ErrTokenInvalid  = errors.New("token invalid")
	ErrTokenIdentity = errors.New("token carries no usable identity")
)

// MintAccessToken signs a token for payload valid from now for the configured
// number of minutes. The identity provider mints production tokens; this is
// for dev tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "", cfg.Issuer == "":
		return "", errors.New("jwt: secret and issuer are required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt: expiration must be positive")
	case payload.UserID == uuid.Nil:
		return "", fmt.Errorf("jwt: %w", ErrTokenIdentity)
	case !payload.Role.IsValid():
		return "", fmt.Errorf("jwt: invalid role %q", payload.Role)
	}

	id := strings.TrimSpace(payload.JTI)
	if id == "" {
		id = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute

	claims := AccessTokenClaims{
		UserID:      payload.UserID,
		Role:        payload.Role.String(),
		DisplayName: payload.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies raw and returns its claims. Failures wrap one of
// ErrTokenExpired, ErrTokenInvalid or ErrTokenIdentity.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret is required")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(time.Duration(cfg.LeewaySeconds)*time.Second),
	)
	claims := &AccessTokenClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	if claims.UserID == uuid.Nil {
		return nil, ErrTokenIdentity
	}
	if _, err := claims.MarketRole(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenIdentity, err)
	}
	return claims, nil
}
