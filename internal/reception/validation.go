package reception

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfirmRequest applies the structural rules of a reception body.
// Semantic rules against the stored order run later in the service.
func ValidateConfirmRequest(req ConfirmRequest) error {
	if len(req.Items) == 0 {
		return ErrNoItems
	}
	return validate.Struct(req)
}
