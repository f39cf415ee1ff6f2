// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package longform

import (
	"context"
	"strings"
)

// Excerpt is one retrieved passage used to enrich a research query.
type Excerpt struct {
	Source string
	Text   string
}

// Collaborator is the narrow retrieval surface the engine consults when
// enriching a research-type query, satisfied by internal/rag's
// Weaviate-backed store without this package importing it directly.
type Collaborator interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Excerpt, error)
}

const defaultTopK = 5

// enrichWithRAG appends up to topK retrieved excerpts to query, truncated
// so the combined excerpt text never exceeds maxContextTokens (estimated
// at ~4 characters per token; internal/router's estimator uses 3.5). It
// returns the enriched query and the list of distinct source names used,
// for the final report's citation list.
func enrichWithRAG(ctx context.Context, collab Collaborator, query string, maxContextTokens int) (string, []string, error) {
	if collab == nil {
		return query, nil, nil
	}
	excerpts, err := collab.Retrieve(ctx, query, defaultTopK)
	if err != nil {
		return query, nil, err
	}
	if len(excerpts) == 0 {
		return query, nil, nil
	}

	maxChars := maxContextTokens * 4
	if maxChars <= 0 {
		maxChars = 4000
	}

	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\nRelevant context:\n")

	used := 0
	sources := make([]string, 0, len(excerpts))
	seen := make(map[string]bool, len(excerpts))
	for _, ex := range excerpts {
		if used+len(ex.Text) > maxChars {
			break
		}
		b.WriteString("- ")
		b.WriteString(ex.Text)
		b.WriteString("\n")
		used += len(ex.Text)
		if !seen[ex.Source] {
			seen[ex.Source] = true
			sources = append(sources, ex.Source)
		}
	}

	return b.String(), sources, nil
}
