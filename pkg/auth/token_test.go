package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/farmbid-backend/pkg/config"
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testJWTConfig(minutes int) config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "farmbid",
		ExpirationMinutes: minutes,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig(30)
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{
		UserID:      userID,
		Role:        enums.RoleMerchant,
		DisplayName: "Ravi Traders",
	})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	require.Equal(t, userID, claims.UserID)
	require.Equal(t, "Ravi Traders", claims.DisplayName)
	require.Equal(t, cfg.Issuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)
	require.Equal(t, userID.String(), claims.Subject)

	role, err := claims.MarketRole()
	require.NoError(t, err)
	require.Equal(t, enums.RoleMerchant, role)

	exp := now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)
	require.WithinDuration(t, exp, claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenAcceptsMixedCaseRole(t *testing.T) {
	cfg := testJWTConfig(10)
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "Farmer",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	parsed, err := ParseAccessToken(cfg, signed)
	require.NoError(t, err)
	role, err := parsed.MarketRole()
	require.NoError(t, err)
	require.Equal(t, enums.RoleFarmer, role)
}

func TestParseAccessTokenRejectsUnknownRole(t *testing.T) {
	cfg := testJWTConfig(10)
	claims := AccessTokenClaims{
		UserID: uuid.New(),
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, signed)
	require.ErrorIs(t, err, ErrTokenIdentity)
}

func TestParseAccessTokenRequiresExpiry(t *testing.T) {
	cfg := testJWTConfig(10)
	claims := AccessTokenClaims{
		UserID:           uuid.New(),
		Role:             "merchant",
		RegisteredClaims: jwt.RegisteredClaims{Issuer: cfg.Issuer},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, signed)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccessTokenInvalidSignature(t *testing.T) {
	cfg := testJWTConfig(10)
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleFarmer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token+"x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	other := cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestParseAccessTokenExpired(t *testing.T) {
	cfg := testJWTConfig(15)
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Hour), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleMerchant,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestParseAccessTokenToleratesSkew(t *testing.T) {
	cfg := testJWTConfig(1)
	cfg.LeewaySeconds = 30
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.RoleFarmer,
	})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	require.NoError(t, err)

	cfg.LeewaySeconds = 0
	_, err = ParseAccessToken(cfg, token)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestMintAccessTokenInvalidRole(t *testing.T) {
	_, err := MintAccessToken(testJWTConfig(5), time.Now(), AccessTokenPayload{
		UserID: uuid.New(),
		Role:   "",
	})
	require.Error(t, err)

	_, err = MintAccessToken(testJWTConfig(5), time.Now(), AccessTokenPayload{Role: enums.RoleFarmer})
	require.ErrorIs(t, err, ErrTokenIdentity)
}
