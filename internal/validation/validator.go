// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

// Package validation validates decoded API requests with go-playground/validator.
//
// A single validator instance is shared by all handlers. Besides the
// built-in tags it knows "relation", which accepts lower snake case
// relation names such as "ownership" or "can_read_data".
//
// Example:
//
//	type setManagedAccessRequest struct {
//	    ManagedAccess *bool `json:"managed-access" validate:"required"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    writeError(w, r, verr)
//	    return
//	}
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once

	relationPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// RequestValidationError collects every failed rule of one request.
type RequestValidationError struct {
	Fields []FieldError
}

func (ve *RequestValidationError) Error() string {
	if len(ve.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(ve.Fields))
	for i, f := range ve.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// IsValidationError reports whether err is or wraps a *RequestValidationError.
func IsValidationError(err error) bool {
	var ve *RequestValidationError
	return errors.As(err, &ve)
}

// GetValidator returns the shared validator.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(jsonFieldName)
		_ = validate.RegisterValidation("relation", func(fl validator.FieldLevel) bool {
			return relationPattern.MatchString(fl.Field().String())
		})
	})
	return validate
}

// jsonFieldName reports fields by their wire name.
func jsonFieldName(f reflect.StructField) string {
	for _, tag := range []string{"json", "query"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// ValidateStruct validates s. It returns nil when every rule passes.
func ValidateStruct(s any) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	out := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = FieldError{Field: fe.Field(), Tag: fe.Tag(), Message: translateError(fe)}
	}
	return &RequestValidationError{Fields: out}
}

var errorMessageTemplates = map[string]string{
	"required": "%s is required",
	"uuid":     "%s must be a UUID",
	"relation": "%s must be a relation name",
}

var errorMessageWithParam = map[string]string{
	"oneof":         "%s must be one of: %s",
	"excluded_with": "%s cannot be combined with %s",
}

func translateError(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()
	if template, ok := errorMessageTemplates[tag]; ok {
		return fmt.Sprintf(template, field)
	}
	if template, ok := errorMessageWithParam[tag]; ok {
		return fmt.Sprintf(template, field, param)
	}
	return translateMinMax(fe, field, tag, param)
}

func translateMinMax(fe validator.FieldError, field, tag, param string) string {
	unit := ""
	switch fe.Kind().String() {
	case "string":
		unit = " characters"
	case "slice":
		unit = " items"
	}
	switch tag {
	case "min":
		return fmt.Sprintf("%s must have at least %s%s", field, param, unit)
	case "max":
		return fmt.Sprintf("%s must have at most %s%s", field, param, unit)
	}
	return fmt.Sprintf("%s failed %s validation", field, tag)
}
