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

//nolint:revive // custom validation tags (duration, title, vndbid) are unknown to revive
package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDuration(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Duration string `validate:"duration"`
	}

	tests := []struct {
		name      string
		value     string
		wantError bool
	}{
		{name: "empty", value: "", wantError: false},
		{name: "minutes", value: "90m", wantError: false},
		{name: "compound", value: "1h30m", wantError: false},
		{name: "zero", value: "0s", wantError: false},
		{name: "negative", value: "-5m", wantError: true},
		{name: "bare number", value: "90", wantError: true},
		{name: "garbage", value: "soon", wantError: true},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := v.Validate(&testStruct{Duration: tt.value})
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "non-negative duration")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTitleAndVNDBID(t *testing.T) {
	t.Parallel()

	type testStruct struct {
		Title  string `validate:"required,title"`
		VNDBID string `validate:"omitempty,vndbid"`
	}

	v := NewValidator()
	require.NoError(t, v.Validate(&testStruct{Title: "Saya no Uta", VNDBID: "v97"}))
	require.NoError(t, v.Validate(&testStruct{Title: "Saya no Uta"}))

	err := v.Validate(&testStruct{Title: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "title must not be blank")

	err = v.Validate(&testStruct{Title: "Saya no Uta", VNDBID: "97"})
	var vErr *Error
	require.ErrorAs(t, err, &vErr)
	require.Len(t, vErr.Fields, 1)
	assert.Equal(t, "VNDBID", vErr.Fields[0].Field)
	assert.Equal(t, "vndbid", vErr.Fields[0].Tag)
}

func TestValidateAndUnmarshal(t *testing.T) {
	t.Parallel()

	type params struct {
		Duration string `json:"duration" validate:"required,duration"`
	}

	var p params
	require.ErrorIs(t, ValidateAndUnmarshal(nil, &p), ErrMissingParams)
	require.ErrorIs(t, ValidateAndUnmarshal([]byte(`{"duration":`), &p), ErrInvalidParams)

	var vErr *Error
	require.ErrorAs(t, ValidateAndUnmarshal([]byte(`{}`), &p), &vErr)
	assert.Equal(t, "duration is required", vErr.Error())

	require.NoError(t, ValidateAndUnmarshal([]byte(`{"duration":"45m"}`), &p))
	assert.Equal(t, "45m", p.Duration)
}

func TestDecodeAndValidate_LimitsBody(t *testing.T) {
	t.Parallel()

	type params struct {
		Title string `json:"title" validate:"required,title"`
	}

	var p params
	body := `{"title":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	require.ErrorIs(t, DecodeAndValidate(strings.NewReader(body), &p), ErrInvalidParams)

	require.NoError(t, DecodeAndValidate(strings.NewReader(`{"title":"Ever17"}`), &p))
	assert.Equal(t, "Ever17", p.Title)
}
