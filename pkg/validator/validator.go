package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	v *validator.Validate
)

func init() {
	v = validator.New()
}

// Validate runs struct tag validation against i.
func Validate(i interface{}) error {
	if i == nil {
		return fmt.Errorf("data to validate is nil")
	}

	return v.Struct(i)
}

// Var validates a single value against the given tag, e.g. Var(date, "required,len=8,numeric").
func Var(field interface{}, tag string) error {
	return v.Var(field, tag)
}
