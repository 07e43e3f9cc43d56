// Package validate wraps go-playground/validator with the rules used by
// onboarding request payloads.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sells-group/onboard/internal/model"
)

// Validator checks request structs and renders failures using the fields'
// JSON names.
type Validator struct {
	validator *validator.Validate
}

// New returns a Validator with the onboarding rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("notblank", notBlank)
	_ = v.RegisterValidation("step", stepValidator)
	return &Validator{validator: v}
}

// Struct validates s. The returned error lists every failing field.
func (v *Validator) Struct(s any) error {
	err := v.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return fe.Field() + " is required"
	case "step":
		return fmt.Sprintf("%s %q is not a wizard step", fe.Field(), fe.Value())
	case "max":
		return fmt.Sprintf("%s must have at most %s entries", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func notBlank(fl validator.FieldLevel) bool {
	val, ok := fl.Field().Interface().(string)
	if !ok {
		return false
	}
	return strings.TrimSpace(val) != ""
}

func stepValidator(fl validator.FieldLevel) bool {
	var s string
	switch val := fl.Field().Interface().(type) {
	case string:
		s = val
	case model.Step:
		s = string(val)
	default:
		return false
	}
	_, err := model.ParseStep(s)
	return err == nil
}
