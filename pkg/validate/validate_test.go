package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

type sample struct {
	Name  string    `json:"name" validate:"required"`
	Price int64     `json:"price" validate:"gt=0"`
	Lat   float64   `json:"lat" validate:"gte=-90,lte=90"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to" validate:"gtfield=From"`
}

func TestStructReportsFieldsByJSONName(t *testing.T) {
	now := time.Now()
	err := Struct(sample{Price: 0, Lat: 91, From: now, To: now.Add(-time.Minute)})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeValidation, typed.Code())

	details := typed.Details().(map[string]string)
	require.Equal(t, "is required", details["name"])
	require.Equal(t, "must be greater than 0", details["price"])
	require.Equal(t, "must be at most 90", details["lat"])
	require.Equal(t, "must be after From", details["to"])
}

func TestStructAcceptsValidInput(t *testing.T) {
	now := time.Now()
	require.NoError(t, Struct(sample{Name: "x", Price: 1, Lat: 35.7, From: now, To: now.Add(time.Hour)}))
}

func TestAuthorityTag(t *testing.T) {
	type ref struct {
		Authority string `json:"authority" validate:"authority"`
	}
	require.NoError(t, Struct(ref{Authority: "A0000000000000000000000000000123456"}))

	for _, bad := range []string{"", "has space", "tab\there", "ünicode"} {
		err := Struct(ref{Authority: bad})
		require.Equal(t, "must be a printable token without spaces",
			pkgerrors.As(err).Details().(map[string]string)["authority"], bad)
	}
}

func TestFormatErrorsWrapsForeignErrors(t *testing.T) {
	err := FormatErrors(errors.New("not a validation error"))
	require.Equal(t, pkgerrors.CodeValidation, err.Code())
	require.Nil(t, err.Details())
}
