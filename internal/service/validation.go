package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/query-kb-api/internal/models"
	appErrors "github.com/noah-isme/query-kb-api/pkg/errors"
)

var queryOrganizations = map[models.Organization]struct{}{
	models.OrgKhushii:        {},
	models.OrgJWP:            {},
	models.OrgAnimalCare:     {},
	models.OrgGreenEarth:     {},
	models.OrgEducationFirst: {},
}

// NewValidator returns a validator that reports JSON field names and knows the
// organization enums used by query and knowledge base payloads.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("organization", func(fl validator.FieldLevel) bool {
		_, ok := queryOrganizations[models.Organization(fl.Field().String())]
		return ok
	})
	_ = v.RegisterValidation("kb_organization", func(fl validator.FieldLevel) bool {
		org := models.Organization(fl.Field().String())
		if org == models.OrgAll {
			return true
		}
		_, ok := queryOrganizations[org]
		return ok
	})
	return v
}

// validationError converts validator output into a VALIDATION_ERROR carrying per-field messages.
func validationError(err error, message string) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message)
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fieldPath(fe)] = fieldMessage(fe)
	}
	return appErrors.WithDetails(appErrors.ErrValidation, message, details)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "organization", "kb_organization":
		return "is not a recognised organization"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

func emptyUpdateError() error {
	return appErrors.WithDetails(appErrors.ErrValidation, "at least one field must be provided", nil)
}
