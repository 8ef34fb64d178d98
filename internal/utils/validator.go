// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validate      *validator.Validate
	contentIDExpr = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("bps", validateBasisPoints)
	validate.RegisterValidation("content_id", validateContentID)
	validate.RegisterValidation("identity", validateIdentity)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

// A single royalty share lies in 1..10000 basis points.
func validateBasisPoints(fl validator.FieldLevel) bool {
	bps := fl.Field().Int()
	return bps >= 1 && bps <= 10000
}

func validateContentID(fl validator.FieldLevel) bool {
	return contentIDExpr.MatchString(fl.Field().String())
}

// Identities are opaque principal ids: non-blank, at most 128 bytes, no
// surrounding or control whitespace.
func validateIdentity(fl validator.FieldLevel) bool {
	identity := fl.Field().String()
	if identity == "" || len(identity) > 128 {
		return false
	}
	if strings.TrimSpace(identity) != identity {
		return false
	}
	for _, r := range identity {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "len":
		return e.Field() + " must have length " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "url":
		return e.Field() + " must be an absolute URL"
	case "bps":
		return "Basis points must be between 1 and 10000"
	case "content_id":
		return "Content id must be 1-128 characters of letters, digits, '.', '_' or '-'"
	case "identity":
		return "Identity must be a non-blank principal id of at most 128 characters"
	default:
		return e.Field() + " is invalid"
	}
}
