package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	app_errors "beru/backend/internal/errors"

	"github.com/go-playground/validator/v10"
)

var (
	// validate holds the single instance of the validator.
	validate *validator.Validate
	// once ensures that the validator is initialized only one time.
	once sync.Once
)

func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks a payload against its `validate` tags and returns an
// `app_errors.ErrValidation` describing every failed field.
func validateRequest(payload interface{}) error {
	err := getInstance().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return app_errors.Wrap(app_errors.ErrValidation, "An unexpected error occurred during validation", err)
	}

	var errorMessages []string
	for _, fieldErr := range validationErrors {
		// Example output: "Field 'Message' failed on the 'required' tag."
		errMsg := fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag())
		errorMessages = append(errorMessages, errMsg)
	}

	return app_errors.New(app_errors.ErrValidation, strings.Join(errorMessages, "; "))
}
