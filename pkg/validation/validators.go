package validation

import (
	"regexp"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Regex patterns
var (
	sha256Regex = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// RegisterValidators registers custom validators to the validator instance
func RegisterValidators(v *validator.Validate) {
	_ = v.RegisterValidation("scan_id", ScanID)
	_ = v.RegisterValidation("sha256_hex", SHA256Hex)
	_ = v.RegisterValidation("no_control", NoControlChars)
}

// ScanID validates a canonical UUID scan identifier
func ScanID(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true // Optional, use required if needed
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return false
	}
	// Reject urn:/braced forms so ids round-trip unchanged
	return id.String() == val
}

// SHA256Hex validates a 64 character hex digest
func SHA256Hex(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return sha256Regex.MatchString(val)
}

// NoControlChars rejects strings with control characters
func NoControlChars(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
