package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

var kenyanMSISDN = regexp.MustCompile(`^(?:\+?254|0)?([17]\d{8})$`)

// NewValidationHelper creates a new validation helper with the msisdn_ke tag
// registered.
func NewValidationHelper() *ValidationHelper {
	v := validator.New()
	_ = v.RegisterValidation("msisdn_ke", func(fl validator.FieldLevel) bool {
		_, ok := NormalizeMSISDN(fl.Field().String())
		return ok
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// NormalizeMSISDN converts 07XXXXXXXX, 7XXXXXXXX, +2547XXXXXXXX and
// 2547XXXXXXXX (and the 01 prefix range) to 254XXXXXXXXX.
func NormalizeMSISDN(contact string) (string, bool) {
	c := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(contact))
	m := kenyanMSISDN.FindStringSubmatch(c)
	if m == nil {
		return "", false
	}
	return "254" + m[1], true
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var verrs validator.ValidationErrors
	if errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}
