package enums

// RatingKind tags who rated whom after a completed trip.
type RatingKind string

const (
	RatingKindDriverByOwner RatingKind = "driver_by_owner"
	RatingKindOwnerByDriver RatingKind = "owner_by_driver"
)

var ratingKinds = newSet("rating kind",
	RatingKindDriverByOwner,
	RatingKindOwnerByDriver,
)

func (k RatingKind) String() string { return string(k) }

// IsValid reports whether the value is a known RatingKind.
func (k RatingKind) IsValid() bool { return ratingKinds.has(k) }

// ParseRatingKind converts raw input into a RatingKind.
func ParseRatingKind(value string) (RatingKind, error) {
	return ratingKinds.parse(value)
}
