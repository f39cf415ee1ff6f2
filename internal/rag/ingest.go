// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	chunkSize    = 1000
	chunkOverlap = 150
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// splitterFor picks a recursive-character splitter tuned for the file's
// extension, the way the orchestrator's document ingestion handler does,
// falling back to prose-oriented separators for everything else.
func splitterFor(filename string) textsplitter.TextSplitter {
	switch filepath.Ext(filename) {
	case ".md":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n## ", "\n### ", "\n\n", "\n", " ", ""}),
		)
	case ".go", ".java", ".c", ".cpp", ".ts", ".js", ".rs":
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\nfunc ", "\nclass ", "\n\n", "\n", " ", ""}),
		)
	default:
		return textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(defaultSeparators),
		)
	}
}

// Ingest splits content into chunks and stores each as a Document object
// in the configured class, tagging every chunk with source for citation.
func (s *Store) Ingest(ctx context.Context, source, content string) (int, error) {
	chunks, err := splitterFor(source).SplitText(content)
	if err != nil {
		return 0, fmt.Errorf("rag: split %s: %w", source, err)
	}

	creator := s.client.Data().Creator()
	for _, chunk := range chunks {
		props := map[string]any{"content": chunk, "source": source}
		if _, err := creator.
			WithClassName(s.className).
			WithProperties(props).
			Do(ctx); err != nil {
			return 0, fmt.Errorf("rag: store chunk of %s: %w", source, err)
		}
	}
	return len(chunks), nil
}
