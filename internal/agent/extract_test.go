// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONDirectParse(t *testing.T) {
	data, ok := extractJSON(`{"summary": "ok", "count": 3}`)
	require.True(t, ok)
	assert.Equal(t, "ok", data["summary"])
}

func TestExtractJSONFromFencedCodeBlock(t *testing.T) {
	raw := "Here is the result:\n```json\n{\"story\": \"once upon a time\"}\n```\nHope that helps."
	data, ok := extractJSON(raw)
	require.True(t, ok)
	assert.Equal(t, "once upon a time", data["story"])
}

func TestExtractJSONFromSurroundingProse(t *testing.T) {
	raw := `Sure, here you go: {"topics": ["a", "b"], "context": "background"} let me know if you need more.`
	data, ok := extractJSON(raw)
	require.True(t, ok)
	assert.Equal(t, "background", data["context"])
}

func TestExtractJSONRepairsTrailingCommaAndBareKeys(t *testing.T) {
	raw := `{summary: "done", key_points: ["a", "b",],}`
	data, ok := extractJSON(raw)
	require.True(t, ok)
	assert.Equal(t, "done", data["summary"])
}

func TestExtractJSONRepairsSingleQuotes(t *testing.T) {
	raw := `{'summary': 'it worked', 'count': 2}`
	data, ok := extractJSON(raw)
	require.True(t, ok)
	assert.Equal(t, "it worked", data["summary"])
}

func TestExtractJSONFailsOnNoObject(t *testing.T) {
	_, ok := extractJSON("I cannot comply with that request.")
	assert.False(t, ok)
}
