// Lakekeeper Sub000 - Catalog Authorization Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/timoguin/lakekeeper-sub000

package validation

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

type testRequest struct {
	ManagedAccess *bool    `json:"managed-access" validate:"required"`
	Relations     []string `json:"relations" validate:"max=3,dive,relation"`
	PrincipalUser string   `query:"principalUser" validate:"omitempty,max=16,excluded_with=PrincipalRole"`
	PrincipalRole string   `query:"principalRole" validate:"omitempty,uuid"`
}

func boolPtr(b bool) *bool { return &b }

func TestGetValidator_Singleton(t *testing.T) {
	if v1, v2 := GetValidator(), GetValidator(); v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return one shared instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     testRequest
		wantField string
		wantTag   string
	}{
		{name: "valid", input: testRequest{ManagedAccess: boolPtr(false), Relations: []string{"ownership", "can_read_data"}}},
		{name: "missing flag", input: testRequest{}, wantField: "managed-access", wantTag: "required"},
		{
			name:      "bad relation",
			input:     testRequest{ManagedAccess: boolPtr(true), Relations: []string{"Ownership"}},
			wantField: "relations[0]",
			wantTag:   "relation",
		},
		{
			name:      "too many relations",
			input:     testRequest{ManagedAccess: boolPtr(true), Relations: []string{"a", "b", "c", "d"}},
			wantField: "relations",
			wantTag:   "max",
		},
		{
			name:      "role must be uuid",
			input:     testRequest{ManagedAccess: boolPtr(true), PrincipalRole: "admins"},
			wantField: "principalRole",
			wantTag:   "uuid",
		},
		{
			name: "user and role are exclusive",
			input: testRequest{
				ManagedAccess: boolPtr(true),
				PrincipalUser: "oidc~a",
				PrincipalRole: "0190aa5e-3c3c-7b5e-8f00-000000000001",
			},
			wantField: "principalUser",
			wantTag:   "excluded_with",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if tt.wantTag == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() expected error")
			}
			found := false
			for _, f := range verr.Fields {
				if f.Field == tt.wantField && f.Tag == tt.wantTag {
					found = true
				}
			}
			if !found {
				t.Errorf("fields = %+v, want %s/%s", verr.Fields, tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestRequestValidationError(t *testing.T) {
	verr := ValidateStruct(&testRequest{Relations: []string{"a", "b", "c", "d"}})
	if verr == nil || len(verr.Fields) != 2 {
		t.Fatalf("ValidateStruct() = %+v, want two failures", verr)
	}
	msg := verr.Error()
	if !strings.Contains(msg, "managed-access is required") || !strings.Contains(msg, "at most 3 items") {
		t.Errorf("Error() = %q", msg)
	}

	wrapped := fmt.Errorf("decode: %w", verr)
	if !IsValidationError(wrapped) {
		t.Error("IsValidationError() should see through wrapping")
	}
	if IsValidationError(errors.New("other")) {
		t.Error("IsValidationError() matched an unrelated error")
	}
	if (&RequestValidationError{}).Error() != "validation failed" {
		t.Error("empty error should have a generic message")
	}
}
