// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitterForMarkdownProducesMultipleChunksOnLongInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		sb.WriteString("## Section\n\nSome reasonably long paragraph of prose to pad the document out past a single chunk boundary.\n\n")
	}

	chunks, err := splitterFor("notes.md").SplitText(sb.String())
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)
}

func TestSplitterForGoFileUsesCodeSeparators(t *testing.T) {
	src := "package main\n\nfunc A() {}\n\nfunc B() {}\n"
	chunks, err := splitterFor("main.go").SplitText(src)
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}

func TestNewRejectsMalformedURL(t *testing.T) {
	_, err := New("not-a-url", "Document")
	assert.Error(t, err)
}

func TestNewDefaultsClassName(t *testing.T) {
	s, err := New("http://localhost:8080", "")
	require.NoError(t, err)
	assert.Equal(t, defaultClassName, s.className)
}
