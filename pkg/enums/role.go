package enums

import "strings"

// Role identifies which side of the marketplace a user acts on.
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleMerchant Role = "merchant"
)

var roles = newSet("role", RoleFarmer, RoleMerchant)

func (r Role) String() string { return string(r) }

func (r Role) IsValid() bool { return roles.has(r) }

// ParseRole ignores case and surrounding whitespace.
func ParseRole(value string) (Role, error) {
	return roles.parse(strings.ToLower(strings.TrimSpace(value)))
}
