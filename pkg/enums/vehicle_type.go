package enums

// VehicleType is the class of vehicle a cargo request needs.
type VehicleType string

const (
	VehicleTypeVan          VehicleType = "van"
	VehicleTypePickup       VehicleType = "pickup"
	VehicleTypeLightTruck   VehicleType = "light_truck"
	VehicleTypeHeavyTruck   VehicleType = "heavy_truck"
	VehicleTypeTrailer      VehicleType = "trailer"
	VehicleTypeRefrigerated VehicleType = "refrigerated"
	VehicleTypeFlatbed      VehicleType = "flatbed"
	VehicleTypeTanker       VehicleType = "tanker"
)

var vehicleTypes = newSet("vehicle type",
	VehicleTypeVan,
	VehicleTypePickup,
	VehicleTypeLightTruck,
	VehicleTypeHeavyTruck,
	VehicleTypeTrailer,
	VehicleTypeRefrigerated,
	VehicleTypeFlatbed,
	VehicleTypeTanker,
)

func (v VehicleType) String() string { return string(v) }

// IsValid reports whether the value is a known VehicleType.
func (v VehicleType) IsValid() bool { return vehicleTypes.has(v) }

// ParseVehicleType converts raw input into a VehicleType.
func ParseVehicleType(value string) (VehicleType, error) {
	return vehicleTypes.parse(value)
}
