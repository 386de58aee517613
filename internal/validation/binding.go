package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/propaudit/propaudit/internal/apperrors"
	"github.com/propaudit/propaudit/internal/db/models"
)

// RegisterBindingValidators adds the checklist tags to gin's validator:
//
//	response_type  one of yes_no, text, number, rating, photo
//	severity       one of low, medium, high, critical
//	notblank       not empty after trimming whitespace
func RegisterBindingValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("gin binding validator is not go-playground/validator")
	}
	return Register(v)
}

// Register adds the checklist tags to v and reports fields by their JSON name
func Register(v *validator.Validate) error {
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("response_type", func(fl validator.FieldLevel) bool {
		return models.ResponseType(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	if err := v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
		return models.IssueSeverity(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("notblank", validators.NotBlank)
}

// BindingError converts a bind failure into a validation error listing each
// offending field
func BindingError(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Validation("INVALID_REQUEST", "invalid request body: %v", err)
	}

	// INVALID_ID when malformed ids are the only problem
	code := "INVALID_ID"
	fields := make(map[string]string, len(verrs))
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() != "uuid" {
			code = "INVALID_REQUEST"
		}
		name := toSnake(fe.Field())
		fields[name] = fieldMessage(fe)
		msgs = append(msgs, name+" "+fields[name])
	}
	return apperrors.Validation(code, "%s", strings.Join(msgs, "; ")).WithDetail("fields", fields)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "response_type":
		return "must be one of yes_no, text, number, rating, photo"
	case "severity":
		return "must be one of low, medium, high, critical"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "uuid":
		return "must be a uuid"
	default:
		return "is invalid"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
