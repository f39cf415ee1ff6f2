// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rag implements a document-retrieval Collaborator for the
// longform engine, backed by a Weaviate vector store the way
// services/orchestrator wires its Document class.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/sollol/internal/longform"
)

const defaultClassName = "Document"

// Store is a Weaviate-backed longform.Collaborator. The zero value is not
// usable; construct with New.
type Store struct {
	client    *weaviate.Client
	className string
}

// New parses rawURL ("http://host:port") and constructs a Store. An empty
// or malformed rawURL is rejected with an error; New itself makes no
// network connection.
func New(rawURL, className string) (*Store, error) {
	rawURL = strings.Trim(rawURL, "\"' ")
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("rag: invalid weaviate url %q", rawURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{Host: parsed.Host, Scheme: parsed.Scheme})
	if err != nil {
		return nil, fmt.Errorf("rag: create weaviate client: %w", err)
	}

	if className == "" {
		className = defaultClassName
	}
	return &Store{client: client, className: className}, nil
}

// documentQueryResponse mirrors the orchestrator's DocumentQueryResponse
// shape for the subset of fields a longform excerpt needs.
type documentQueryResponse struct {
	Get struct {
		Document []struct {
			Content string `json:"content"`
			Source  string `json:"source"`
		} `json:"Document"`
	} `json:"Get"`
}

// Retrieve satisfies longform.Collaborator: it runs a nearText semantic
// search against the configured class and returns the topK closest
// excerpts.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]longform.Excerpt, error) {
	if topK <= 0 {
		topK = 5
	}

	nearText := s.client.GraphQL().NearTextArgBuilder().WithConcepts([]string{query})
	fields := []graphql.Field{
		{Name: "content"},
		{Name: "source"},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: weaviate query: %w", err)
	}

	parsed, err := parseDocumentResponse(resp)
	if err != nil {
		return nil, err
	}

	excerpts := make([]longform.Excerpt, 0, len(parsed.Get.Document))
	for _, d := range parsed.Get.Document {
		excerpts = append(excerpts, longform.Excerpt{Source: d.Source, Text: d.Content})
	}
	return excerpts, nil
}

func parseDocumentResponse(resp *models.GraphQLResponse) (*documentQueryResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("rag: nil graphql response")
	}
	data, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("rag: marshal graphql response: %w", err)
	}
	var out documentQueryResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("rag: unmarshal graphql response: %w", err)
	}
	return &out, nil
}

var _ longform.Collaborator = (*Store)(nil)
