package core

import (
	"errors"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"forecasting/internal/types"
)

// cityNamePattern matches registry keys: upper-case letters, digits and
// underscores, starting with a letter.
var cityNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Validator wraps go-playground/validator with the API's custom tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator and registers the "cityname" tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report JSON field names instead of Go field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := v.RegisterValidation("cityname", func(fl validator.FieldLevel) bool {
		return cityNamePattern.MatchString(fl.Field().String())
	}); err != nil {
		logger.Error("failed to register cityname validation", "error", err)
	}

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s. Rule violations come back as a
// validation_failed AppError whose details map each field to the failed tag.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("struct validation could not run", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fieldPath(fe)] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationFailed,
		"request validation failed",
		err,
		map[string]any{"fields": fields},
	)
}

// fieldPath drops the top-level struct name from the namespace:
// "RankingRequest.cities[2]" becomes "cities[2]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}
