// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package node

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// generateRequest mirrors Ollama's POST /api/generate request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	System string `json:"system,omitempty"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

// GenerateResult is the outcome of one POST /api/generate call against
// this node.
type GenerateResult struct {
	Response   string
	DurationMS float64
	Success    bool
	Err        error
}

// generateResponse mirrors Ollama's POST /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
}

// Generate issues a single, non-streaming generate call. If format is
// "json" and the server rejects the format field, it retries once without
// it, per spec.md §4.9 step 4. The caller is responsible for recording the
// outcome via RecordOutcome exactly once.
func (n *Node) Generate(ctx context.Context, model, prompt, system, format string) GenerateResult {
	ctx, span := n.startGenerateSpan(ctx, model)
	defer span.End()

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx); err != nil {
			span.RecordError(err)
			return GenerateResult{Err: err}
		}
	}

	start := time.Now()
	resp, err := n.doGenerate(ctx, model, prompt, system, format)
	elapsed := time.Since(start)

	if err != nil && format != "" && looksLikeUnsupportedFormat(err) {
		resp, err = n.doGenerate(ctx, model, prompt, system, "")
		elapsed = time.Since(start)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GenerateResult{DurationMS: float64(elapsed.Milliseconds()), Success: false, Err: err}
	}

	span.SetStatus(codes.Ok, "")
	return GenerateResult{
		Response:   resp,
		DurationMS: float64(elapsed.Milliseconds()),
		Success:    true,
	}
}

func (n *Node) startGenerateSpan(ctx context.Context, model string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "node.generate", trace.WithAttributes(
		attribute.String("node.url", n.URL),
		attribute.String("node.model", model),
	))
}

func (n *Node) doGenerate(ctx context.Context, model, prompt, system, format string) (string, error) {
	reqBody := generateRequest{
		Model:  model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Format: format,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errGenerateUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &backendError{statusCode: resp.StatusCode, body: string(respBody)}
	}

	var parsed generateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	return parsed.Response, nil
}

var errGenerateUnreachable = fmt.Errorf("backend unreachable")

// backendError carries the HTTP status and raw body of a non-2xx response
// so callers can distinguish an unsupported-format rejection from other
// failures without reparsing.
type backendError struct {
	statusCode int
	body       string
}

func (e *backendError) Error() string {
	return fmt.Sprintf("backend rejected request (status %d): %s", e.statusCode, e.body)
}

func looksLikeUnsupportedFormat(err error) bool {
	var be *backendError
	if !errors.As(err, &be) {
		return false
	}
	return strings.Contains(strings.ToLower(be.body), "format")
}
