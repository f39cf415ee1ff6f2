// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package longform

import "github.com/AleutianAI/sollol/internal/agent"

// narrativeKeyPriority is the ordered list of field names checked when
// pulling prose out of a chunk or synthesis result's JSON data, grounded
// on distributed_orchestrator.py's _extract_narrative_from_json.
var narrativeKeyPriority = []string{
	"data", "story", "detailed_explanation", "context", "final_output", "summary", "content", "narrative",
}

// extractNarrative pulls the prose content out of a completed agent
// result: the first populated key in narrativeKeyPriority order, then the
// longest string value present, then any non-empty string value, then the
// raw text fallback.
func extractNarrative(r agent.Result) string {
	if r.Format == agent.FormatText {
		return r.RawText
	}
	if r.Data == nil {
		return r.RawText
	}

	for _, key := range narrativeKeyPriority {
		if v, ok := r.Data[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	longest := ""
	for _, v := range r.Data {
		if s, ok := v.(string); ok && len(s) > len(longest) {
			longest = s
		}
	}
	if longest != "" {
		return longest
	}

	for _, v := range r.Data {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}

	return r.RawText
}
