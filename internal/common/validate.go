package common

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in errors use the json tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		validate = v
	})
	return validate
}

// DecodeAndValidate reads a JSON body into dst and runs struct validation.
func DecodeAndValidate(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &AppError{Code: "BAD_REQUEST", Message: "invalid JSON body", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	return ValidateStruct(dst)
}

// ValidateStruct maps validator failures to a 400 AppError listing the fields.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &AppError{Code: "BAD_REQUEST", Message: "invalid request", HTTPStatus: http.StatusBadRequest, Err: err}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe.Namespace())] = fe.Tag()
	}
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    "request validation failed",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
		Details:    map[string]any{"fields": fields},
	}
}

func fieldPath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}
