package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/freightmarket-backend/pkg/enums"
)

// RatingDimensions holds optional per-dimension scores such as punctuality.
type RatingDimensions map[string]int

func (d RatingDimensions) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (d *RatingDimensions) Scan(src any) error {
	if src == nil {
		*d = nil
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("RatingDimensions: unsupported Scan type %T", src)
	}
	out := RatingDimensions{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*d = out
	return nil
}

// Rating is a single post-trip review tagged by kind.
type Rating struct {
	ID         uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	TripID     uuid.UUID        `gorm:"column:trip_id;type:uuid;not null;uniqueIndex:ux_ratings_trip_kind,priority:1"`
	Kind       enums.RatingKind `gorm:"column:kind;type:text;not null;uniqueIndex:ux_ratings_trip_kind,priority:2"`
	RaterID    uuid.UUID        `gorm:"column:rater_id;type:uuid;not null"`
	RateeID    uuid.UUID        `gorm:"column:ratee_id;type:uuid;not null;index"`
	Score      int              `gorm:"column:score;not null"`
	Comment    *string          `gorm:"column:comment"`
	Dimensions RatingDimensions `gorm:"column:dimensions;type:jsonb"`
	CreatedAt  time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (r *Rating) BeforeCreate(*gorm.DB) error {
	assignID(&r.ID)
	return nil
}
