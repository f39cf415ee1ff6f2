// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsonpatch "github.com/evanphx/json-patch/v5"
)

const maxRepairAttempts = 3

// RepairFn asks the same model that produced data for a JSON Patch (RFC
// 6902) correcting it against schema, returning the model's raw text
// response. A nil RepairFn disables repair entirely.
type RepairFn func(ctx context.Context, prompt string) (string, error)

// repairAgainstSchema iteratively asks repair for a JSON-Patch document
// correcting data's validation errors against schema, applies it, and
// re-validates — grounded on trustcall.py's validate_and_repair loop
// (_build_repair_prompt + repair_fn). Gives up after maxRepairAttempts
// rounds, returning the best-effort result and the last validation
// error.
func repairAgainstSchema(ctx context.Context, schema Schema, data map[string]any, repair RepairFn) (map[string]any, error) {
	current := data
	var lastErr error

	for attempt := 1; attempt <= maxRepairAttempts; attempt++ {
		errs := schema.Errors(current)
		if len(errs) == 0 {
			return current, nil
		}
		lastErr = errors.New(strings.Join(errs, "; "))

		if repair == nil {
			break
		}

		prompt := buildRepairPrompt(current, errs, schema, attempt)
		patchText, err := repair(ctx, prompt)
		if err != nil {
			continue
		}

		patched, err := applyPatchText(current, patchText)
		if err != nil {
			continue
		}
		current = patched
	}

	if errs := schema.Errors(current); len(errs) > 0 {
		return current, lastErr
	}
	return current, nil
}

// buildRepairPrompt mirrors trustcall.py's _build_repair_prompt: the
// current JSON, the specific validation errors, the expected schema
// shape, and an explicit request for an RFC 6902 patch array.
func buildRepairPrompt(current map[string]any, errs []string, schema Schema, attempt int) string {
	currentJSON, _ := json.MarshalIndent(current, "", "  ")
	schemaJSON, _ := json.MarshalIndent(schemaShape(schema), "", "  ")

	var b strings.Builder
	b.WriteString("The following JSON has validation errors:\n\nCurrent JSON:\n")
	b.Write(currentJSON)
	b.WriteString("\n\nValidation Errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e)
		b.WriteString("\n")
	}
	b.WriteString("\nExpected Schema:\n")
	b.Write(schemaJSON)
	b.WriteString("\n\nGenerate a JSON Patch (RFC 6902) to fix these validation errors.\n")
	b.WriteString("Your response must be ONLY a valid JSON array of patch operations.\n")
	b.WriteString("Use operations: add, remove, replace, move, copy, test\n\n")
	b.WriteString("Example format:\n")
	b.WriteString(`[{"op": "add", "path": "/missing_field", "value": "some value"}, {"op": "replace", "path": "/wrong_field", "value": "corrected value"}]`)
	b.WriteString(fmt.Sprintf("\n\nAttempt %d/%d. Provide the JSON Patch now:", attempt, maxRepairAttempts))
	return b.String()
}

func schemaShape(schema Schema) map[string]string {
	shape := make(map[string]string, len(schema))
	for field, t := range schema {
		shape[field] = t.String()
	}
	return shape
}

var fencedArrayBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\[.*?\\])\\s*```")
var bracketArray = regexp.MustCompile(`(?s)\[.*\]`)

// applyPatchText extracts a JSON-Patch array from the model's raw patch
// response (direct parse, then a fenced code block, then a bare bracket
// match — the same escalating strategy extractJSON uses for objects) and
// applies it to data.
func applyPatchText(data map[string]any, raw string) (map[string]any, error) {
	ops, ok := extractPatchOps(raw)
	if !ok {
		return nil, fmt.Errorf("repair: could not extract a json patch array from model response")
	}

	original, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.DecodePatch(ops)
	if err != nil {
		return nil, err
	}
	applied, err := patch.Apply(original)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(applied, &result); err != nil {
		return nil, err
	}
	return result, nil
}

func extractPatchOps(raw string) ([]byte, bool) {
	candidates := []string{strings.TrimSpace(raw)}
	if m := fencedArrayBlock.FindStringSubmatch(raw); len(m) == 2 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := bracketArray.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}
	for _, candidate := range candidates {
		var ops []any
		if json.Unmarshal([]byte(candidate), &ops) == nil {
			return []byte(candidate), true
		}
	}
	return nil, false
}
