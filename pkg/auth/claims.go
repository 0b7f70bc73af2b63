package auth

import (
	"github.com/angelmondragon/farmbid-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID      uuid.UUID
	Role        enums.Role
	DisplayName string
	JTI         string
}

// AccessTokenClaims represents the typed JWT presented by clients. Role is kept
// raw because the identity provider is not consistent about casing.
type AccessTokenClaims struct {
	UserID      uuid.UUID `json:"user_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// MarketRole resolves the raw role claim into a marketplace role.
func (c *AccessTokenClaims) MarketRole() (enums.Role, error) {
	return enums.ParseRole(c.Role)
}
