// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

// Package validation checks API request bodies using go-playground/validator
// with custom tags for durations, titles and VNDB identifiers.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vnclub/vntracker/pkg/tracker"
)

var (
	ErrMissingParams = errors.New("missing params")
	ErrInvalidParams = errors.New("invalid params")

	vndbIDRe = regexp.MustCompile(`^v[0-9]+$`)
)

// maxBodyBytes bounds request bodies read by DecodeAndValidate.
const maxBodyBytes = 64 << 10

type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("duration", validateDuration)
	_ = v.RegisterValidation("title", validateTitle)
	_ = v.RegisterValidation("vndbid", validateVNDBID)

	return &Validator{validate: v}
}

// DefaultValidator is the shared instance used by the API handlers.
var DefaultValidator = NewValidator()

// Validate returns an *Error describing every failing field, or nil.
func (v *Validator) Validate(params any) error {
	if err := v.validate.Struct(params); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewError(validationErrors)
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidateAndUnmarshal unmarshals JSON params and validates them.
// Returns ErrMissingParams if params is empty, ErrInvalidParams if unmarshal
// fails, or an *Error if validation fails.
func ValidateAndUnmarshal[T any](params []byte, dest *T) error {
	if len(params) == 0 {
		return ErrMissingParams
	}
	if err := json.Unmarshal(params, dest); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return DefaultValidator.Validate(dest)
}

// DecodeAndValidate reads a request body and hands it to
// ValidateAndUnmarshal.
func DecodeAndValidate[T any](body io.Reader, dest *T) error {
	data, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return ValidateAndUnmarshal(data, dest)
}

// validateDuration accepts Go durations that are not negative.
func validateDuration(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	d, err := time.ParseDuration(val)
	return err == nil && d >= 0
}

// validateTitle rejects titles that are blank after normalization.
func validateTitle(fl validator.FieldLevel) bool {
	return tracker.NormalizeTitle(fl.Field().String()) != ""
}

func validateVNDBID(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	if val == "" {
		return true
	}
	return vndbIDRe.MatchString(val)
}
