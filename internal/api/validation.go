package api

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sentinela-saude/sentinela/internal/database"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("risk_level", func(fl validator.FieldLevel) bool {
		switch database.RiskLevel(fl.Field().String()) {
		case database.RiskMild, database.RiskModerate, database.RiskSevere, database.RiskNA:
			return true
		}
		return false
	})
	v.RegisterValidation("notification_kind", func(fl validator.FieldLevel) bool {
		switch database.NotificationKind(fl.Field().String()) {
		case database.KindAdverseEvent, database.KindNonConformity:
			return true
		}
		return false
	})
	v.RegisterValidation("incident_status", func(fl validator.FieldLevel) bool {
		switch database.IncidentStatus(fl.Field().String()) {
		case database.IncidentStatusOpen, database.IncidentStatusAnalysis, database.IncidentStatusConcluded:
			return true
		}
		return false
	})
	return v
}

// Validate validates a struct using go-playground/validator tags.
// Returns nil on success or a map of field-name → error-message.
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	errs := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		errs[toSnakeCase(fe.Field())] = validationMessage(fe)
	}
	return errs
}

// validationMessage returns a human-readable message for a validation error.
func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "email":
		return "must be a valid email"
	case "risk_level":
		return "must be one of: LEVE MODERADO GRAVE NA"
	case "notification_kind":
		return fmt.Sprintf("must be %q or %q", database.KindAdverseEvent, database.KindNonConformity)
	case "incident_status":
		return fmt.Sprintf("must be %q, %q or %q", database.IncidentStatusOpen, database.IncidentStatusAnalysis, database.IncidentStatusConcluded)
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// toSnakeCase converts a CamelCase field name to snake_case.
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				result.WriteByte('_')
			}
			result.WriteRune(r + 32)
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
