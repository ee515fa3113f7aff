package enums

// CargoType describes the nature of the goods being shipped.
type CargoType string

const (
	CargoTypeGeneral    CargoType = "general"
	CargoTypeFragile    CargoType = "fragile"
	CargoTypePerishable CargoType = "perishable"
	CargoTypeHazardous  CargoType = "hazardous"
	CargoTypeBulk       CargoType = "bulk"
	CargoTypeLiquid     CargoType = "liquid"
	CargoTypeLivestock  CargoType = "livestock"
	CargoTypeVehicles   CargoType = "vehicles"
)

var cargoTypes = newSet("cargo type",
	CargoTypeGeneral,
	CargoTypeFragile,
	CargoTypePerishable,
	CargoTypeHazardous,
	CargoTypeBulk,
	CargoTypeLiquid,
	CargoTypeLivestock,
	CargoTypeVehicles,
)

func (c CargoType) String() string { return string(c) }

// IsValid reports whether the value is a known CargoType.
func (c CargoType) IsValid() bool { return cargoTypes.has(c) }

// ParseCargoType converts raw input into a CargoType.
func ParseCargoType(value string) (CargoType, error) {
	return cargoTypes.parse(value)
}
