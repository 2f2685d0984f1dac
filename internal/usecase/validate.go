package usecase

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var batchValidator = validator.New(validator.WithRequiredStructEnabled())

// validateBatchInput checks a batch entry-point input struct against its
// validate tags and maps failures onto ErrInvalidInput.
func validateBatchInput(input any) error {
	if err := batchValidator.Struct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
