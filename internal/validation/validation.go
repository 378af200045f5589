// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 M5 Contributors

package validation

import (
	"github.com/fxg4n/m5/internal/apperr"
)

// Rule checks one value of type T. A failing check returns its error code.
type Rule[T any] struct {
	check   func(T) string
	message string
}

// NewRule builds a rule from a check returning an error code, or "" on
// success.
func NewRule[T any](check func(T) string) Rule[T] {
	return Rule[T]{check: check}
}

// WithMessage overrides the default message for this rule's codes.
func (r Rule[T]) WithMessage(msg string) Rule[T] {
	r.message = msg
	return r
}

// FieldSpec is a named value bound to its rules.
type FieldSpec struct {
	name string
	eval func() (code, message string)
}

// Name returns the field name.
func (f FieldSpec) Name() string { return f.name }

// Field binds value to rules under name. Rules run in order and the first
// failure is reported.
func Field[T any](name string, value T, rules ...Rule[T]) FieldSpec {
	return FieldSpec{
		name: name,
		eval: func() (string, string) {
			for _, r := range rules {
				if code := r.check(value); code != "" {
					return code, r.message
				}
			}
			return "", ""
		},
	}
}

// Optional is Field for string values that may be left empty; an empty value
// skips all rules.
func Optional(name, value string, rules ...Rule[string]) FieldSpec {
	if value == "" {
		return FieldSpec{name: name, eval: func() (string, string) { return "", "" }}
	}
	return Field(name, value, rules...)
}

// Validate evaluates every field and returns one ValidationError per failing
// field, in field order. The result is nil when all fields pass.
func Validate(fields ...FieldSpec) []apperr.ValidationError {
	var errs []apperr.ValidationError
	for _, f := range fields {
		code, msg := f.eval()
		if code == "" {
			continue
		}
		if msg == "" {
			msg = Message(code, f.name)
		}
		errs = append(errs, apperr.ValidationError{Field: f.name, Code: code, Message: msg})
	}
	return errs
}

// Check is Validate folded into an error: nil on success, otherwise a single
// apperr Validation error carrying the full list.
func Check(fields ...FieldSpec) error {
	if errs := Validate(fields...); len(errs) > 0 {
		return apperr.Validation(errs)
	}
	return nil
}

// Validatable is implemented by request types that declare their own rules.
type Validatable interface {
	ValidationFields() []FieldSpec
}

// Struct checks a Validatable value.
func Struct(v Validatable) error {
	return Check(v.ValidationFields()...)
}
