// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// FieldType is the primitive JSON type a schema field is expected to hold.
type FieldType int

const (
	TypeString FieldType = iota
	TypeNumber
	TypeBool
	TypeStringList
	TypeObject
	TypeAny
)

// Schema maps required field names to their expected FieldType. Unknown
// fields present in the decoded JSON are ignored rather than rejected —
// role prompts are guidance, not a closed contract, mirroring the
// "required fields present; type-check primitive fields" validation the
// runtime performs rather than a full JSON-Schema implementation.
type Schema map[string]FieldType

// Validate reports the first missing-or-mistyped field, or nil if data
// satisfies every field the schema names.
func (s Schema) Validate(data map[string]any) error {
	if errs := s.Errors(data); len(errs) > 0 {
		return fmt.Errorf("%s", errs[0])
	}
	return nil
}

// Errors returns every validation error in data against s: both missing
// fields and scenario 4's present-but-mistyped fields (e.g. "key_points"
// holding a string where the schema wants a list), the latter of which
// MissingFields alone cannot see. Iterates in a stable field order so
// repair prompts built from it are deterministic.
func (s Schema) Errors(data map[string]any) []string {
	fields := make([]string, 0, len(s))
	for field := range s {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var errs []string
	for _, field := range fields {
		want := s[field]
		val, ok := data[field]
		if !ok {
			errs = append(errs, fmt.Sprintf("missing required field %q (expected %s)", field, want))
			continue
		}
		if !matchesType(val, want) {
			errs = append(errs, fmt.Sprintf("field %q: expected %s, got %T", field, want, val))
		}
	}
	return errs
}

// MissingFields returns every schema field absent from data.
func (s Schema) MissingFields(data map[string]any) []string {
	var missing []string
	for field := range s {
		if _, ok := data[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// ZeroValue returns a placeholder value for t.
func (t FieldType) ZeroValue() any {
	switch t {
	case TypeString:
		return ""
	case TypeNumber:
		return 0.0
	case TypeBool:
		return false
	case TypeStringList:
		return []any{}
	case TypeObject:
		return map[string]any{}
	default:
		return nil
	}
}

func (t FieldType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeNumber:
		return "number"
	case TypeBool:
		return "bool"
	case TypeStringList:
		return "string list"
	case TypeObject:
		return "object"
	default:
		return "any"
	}
}

// matchesType narrows the decoded-JSON interface{} to the FieldType's
// underlying Go type — an unavoidable boundary step, the same one
// encoding/json callers do everywhere — and then hands the concrete
// value to validator/v10 for the actual constraint check, rather than
// hand-rolling it: a string list must come back non-nil with every
// element present and non-blank, exactly what `dive,required` checks.
func matchesType(val any, want FieldType) bool {
	switch want {
	case TypeString:
		_, ok := val.(string)
		return ok
	case TypeNumber:
		_, ok := val.(float64)
		return ok
	case TypeBool:
		_, ok := val.(bool)
		return ok
	case TypeStringList:
		list, ok := val.([]any)
		if !ok || list == nil {
			return false
		}
		strs := make([]string, len(list))
		for i, v := range list {
			s, ok := v.(string)
			if !ok {
				return false
			}
			strs[i] = s
		}
		return validate.Var(strs, "dive,required") == nil
	case TypeObject:
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}
