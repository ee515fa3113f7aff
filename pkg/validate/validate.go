// Package validate runs go-playground/validator struct tags and reports
// failures as CodeValidation errors keyed by json field name.
package validate

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/angelmondragon/freightmarket-backend/pkg/errors"
)

var engine = build()

// messages maps a failed tag to its text. Param-taking tags carry a %s.
var messages = map[string]string{
	"required":  "is required",
	"min":       "must be at least %s",
	"gte":       "must be at least %s",
	"max":       "must be at most %s",
	"lte":       "must be at most %s",
	"gt":        "must be greater than %s",
	"gtfield":   "must be after %s",
	"oneof":     "must be one of [%s]",
	"authority": "must be a printable token without spaces",
}

func build() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	if err := v.RegisterValidation("authority", printableToken); err != nil {
		panic(err)
	}
	return v
}

// printableToken accepts the opaque references gateways hand out: non-empty
// printable ASCII without spaces.
func printableToken(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return false
	}
	for _, c := range value {
		if c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}

// Struct validates v; details map each failing field to a message.
func Struct(v any) error {
	if err := engine.Struct(v); err != nil {
		return FormatErrors(err)
	}
	return nil
}

func FormatErrors(err error) *pkgerrors.Error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "validation failed")
	}
	details := make(map[string]string, len(fields))
	for _, fe := range fields {
		details[fe.Field()] = message(fe)
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
}

func message(fe validator.FieldError) string {
	text, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(text, "%s") {
		return strings.Replace(text, "%s", fe.Param(), 1)
	}
	return text
}
