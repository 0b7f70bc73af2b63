package enums

// ProductStatus tracks where an auction lot sits in its lifecycle.
type ProductStatus string

const (
	ProductStatusActive    ProductStatus = "active"
	ProductStatusSold      ProductStatus = "sold"
	ProductStatusDelivered ProductStatus = "delivered"
	ProductStatusExpired   ProductStatus = "expired"
	ProductStatusClosed    ProductStatus = "closed"
)

var productStatuses = newSet("product status",
	ProductStatusActive,
	ProductStatusSold,
	ProductStatusDelivered,
	ProductStatusExpired,
	ProductStatusClosed,
)

func (s ProductStatus) String() string { return string(s) }

func (s ProductStatus) IsValid() bool { return productStatuses.has(s) }

// IsTerminal reports whether the lot can no longer change state.
func (s ProductStatus) IsTerminal() bool {
	return s == ProductStatusDelivered || s == ProductStatusExpired
}

func ParseProductStatus(value string) (ProductStatus, error) {
	return productStatuses.parse(value)
}

// UnitType is the quantity unit a lot is sold in.
type UnitType string

const (
	UnitKilogram UnitType = "kg"
	UnitQuintal  UnitType = "quintal"
	UnitTon      UnitType = "ton"
	UnitDozen    UnitType = "dozen"
	UnitPiece    UnitType = "piece"
	UnitCrate    UnitType = "crate"
)

var unitTypes = newSet("unit type", UnitKilogram, UnitQuintal, UnitTon, UnitDozen, UnitPiece, UnitCrate)

func (u UnitType) IsValid() bool { return unitTypes.has(u) }

func ParseUnitType(value string) (UnitType, error) {
	return unitTypes.parse(value)
}
