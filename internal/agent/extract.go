// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedCodeBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// braceObject is a conservative best-effort match for a top-level JSON
// object embedded in surrounding prose; it does not balance nested braces
// and is only tried after direct parse and fenced-block extraction fail.
var braceObject = regexp.MustCompile(`(?s)\{.*\}`)

// trailingComma matches a comma immediately before a closing bracket.
var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// bareKey matches an unquoted object key at the start of a line or after
// a comma/brace, a common small-model formatting slip.
var bareKey = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)

// extractJSON runs the raw model response through a sequence of
// increasingly aggressive strategies to recover a JSON object, grounded on
// json_pipeline.py's extraction chain: direct parse, fenced code block,
// brace-matching, then textual repair heuristics before a final parse
// attempt. Returns the decoded object and true, or nil and false if every
// strategy failed.
func extractJSON(raw string) (map[string]any, bool) {
	candidates := []string{strings.TrimSpace(raw)}

	if m := fencedCodeBlock.FindStringSubmatch(raw); len(m) == 2 {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := braceObject.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		if data, ok := tryDecode(candidate); ok {
			return data, true
		}
	}

	for _, candidate := range candidates {
		repaired := repairJSONText(candidate)
		if data, ok := tryDecode(repaired); ok {
			return data, true
		}
	}

	return nil, false
}

func tryDecode(s string) (map[string]any, bool) {
	if s == "" {
		return nil, false
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, false
	}
	return data, true
}

// repairJSONText applies the small set of textual fixes json_pipeline.py
// uses before giving up: strip trailing commas, promote single-quoted
// strings to double-quoted, quote bare object keys, and collapse doubled
// quotes left behind by naive escaping.
func repairJSONText(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	s = bareKey.ReplaceAllString(s, `$1"$2"$3`)
	s = strings.ReplaceAll(s, `""`, `"`)
	s = promoteSingleQuotes(s)
	return s
}

// promoteSingleQuotes swaps single-quoted string delimiters for double
// quotes outside of already-double-quoted spans, a common small-model
// mistake when asked for JSON.
func promoteSingleQuotes(s string) string {
	if !strings.Contains(s, "'") {
		return s
	}
	var b strings.Builder
	inDouble := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch c {
		case '"':
			inDouble = !inDouble
			b.WriteByte(c)
		case '\'':
			if inDouble {
				b.WriteByte(c)
			} else {
				b.WriteByte('"')
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
