package core

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"chargemap/internal/types"
)

// ValidationError is one failed field in a request DTO.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult carries hard errors plus non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether there are no errors. Warnings do not count.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Warner is implemented by request DTOs that can flag accepted-but-suspect
// input.
type Warner interface {
	Warnings() []string
}

// Validator wraps go-playground/validator with the gateway's custom tags:
//
//	finite        float is neither NaN nor ±Inf
//	aspect_ratio  float is finite and > 0
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors are the json names.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("finite", validateFinite)
	_ = v.RegisterValidation("aspect_ratio", validateAspectRatio)

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns an *types.AppError listing every
// failed field under details["validation_errors"]. The error code is that of
// the first failure.
func (v *Validator) ValidateStruct(s any) error {
	return v.ValidateStructWithWarnings(s).Err()
}

// Err converts the result into the error ValidateStruct returns, or nil.
func (r ValidationResult) Err() error {
	if r.IsValid() {
		return nil
	}

	first := r.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": r.Errors},
	)
}

// ValidateStructWithWarnings validates s and collects warnings from a Warner.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult
	if w, ok := s.(Warner); ok {
		result.Warnings = w.Warnings()
	}

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		if v.logger != nil {
			v.logger.Error("validator misuse", "error", err, "type", fmt.Sprintf("%T", s))
		}
		result.Errors = append(result.Errors, ValidationError{
			Code:    string(types.ErrCodeValidationFailed),
			Message: "request could not be validated",
		})
		return result
	}

	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fe.Field(),
			Code:    string(tagToErrorCode(fe.Tag())),
			Message: fieldMessage(fe),
		})
	}
	return result
}

func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "latitude":
		return types.ErrCodeValidationInvalidLat
	case "longitude":
		return types.ErrCodeValidationInvalidLon
	case "aspect_ratio":
		return types.ErrCodeValidationInvalidAspect
	case "finite", "gte", "gt":
		return types.ErrCodeValidationInvalidRegion
	default:
		return types.ErrCodeValidationFailed
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "latitude":
		return fe.Field() + " must be a latitude between -90 and 90"
	case "longitude":
		return fe.Field() + " must be a longitude between -180 and 180"
	case "aspect_ratio":
		return fe.Field() + " must be a positive finite number"
	case "finite":
		return fe.Field() + " must be a finite number"
	case "gte", "gt":
		return fmt.Sprintf("%s must be %s %s", fe.Field(), map[string]string{"gte": "at least", "gt": "greater than"}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}

func floatField(fl validator.FieldLevel) (float64, bool) {
	switch fl.Field().Kind() {
	case reflect.Float32, reflect.Float64:
		return fl.Field().Float(), true
	default:
		return 0, false
	}
}

func validateFinite(fl validator.FieldLevel) bool {
	f, ok := floatField(fl)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func validateAspectRatio(fl validator.FieldLevel) bool {
	f, ok := floatField(fl)
	return ok && f > 0 && !math.IsInf(f, 0)
}
