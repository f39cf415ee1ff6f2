// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package router implements the TaskContext analyzer, IntelligentRouter
// scoring, and PerformanceMemory — components D, E, and F.
package router

import (
	"regexp"
)

// TaskType classifies the kind of work a request represents.
type TaskType string

const (
	TaskGeneration     TaskType = "generation"
	TaskSummarization  TaskType = "summarization"
	TaskClassification TaskType = "classification"
	TaskExtraction     TaskType = "extraction"
	TaskEmbedding      TaskType = "embedding"
	TaskChat           TaskType = "chat"
	TaskAnalysis       TaskType = "analysis"
)

// Complexity buckets a request's estimated difficulty.
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// RequestPayload is the minimal shape the analyzer needs from an inbound
// request; callers build this from whatever wire format they receive.
type RequestPayload struct {
	Model       string
	Prompt      string
	System      string
	HasMessages bool
}

// Context is the analyzer's immutable output. Once constructed it is never
// mutated, per spec.md §3.
type Context struct {
	TaskType             TaskType
	Complexity           Complexity
	EstimatedInputTokens int
	EstimatedOutputTokens int
	EstimatedDurationMS  int
	RequiresGPU          bool
	ModelPreference      string
	Priority             int
}

// ThroughputEstimator supplies a tokens/sec estimate for a given node,
// typically backed by PerformanceMemory; it must return a positive value.
type ThroughputEstimator interface {
	TokensPerSecond(nodeURL string, taskType TaskType, model string) (float64, bool)
}

const (
	defaultCPUTokensPerSecond = 15.0
	defaultGPUTokensPerSecond = 60.0

	gpuParamThresholdB = 13
)

var (
	summarizeKeyword  = regexp.MustCompile(`(?i)summar`)
	classifyKeyword   = regexp.MustCompile(`(?i)classif`)
	extractKeyword    = regexp.MustCompile(`(?i)extract`)
	embedModelPattern = regexp.MustCompile(`(?i)embed`)
	detailKeyword     = regexp.MustCompile(`(?i)analy[sz]e|detailed`)
)

// Analyze is pure and deterministic: the same payload and priority always
// produce the same Context, with no I/O performed.
func Analyze(p RequestPayload, priority int, estimator ThroughputEstimator) Context {
	if priority <= 0 {
		priority = 5
	}

	taskType := classifyTaskType(p)
	complexity := classifyComplexity(p)

	inputTokens := estimateInputTokens(p.Prompt + " " + p.System)
	outputTokens := estimateOutputTokens(taskType, inputTokens)

	requiresGPU := complexity == ComplexityHigh || outputTokens >= 256 || modelParamBillions(p.Model) >= gpuParamThresholdB

	tps, ok := float64(0), false
	if estimator != nil {
		tps, ok = estimator.TokensPerSecond("", taskType, p.Model)
	}
	if !ok || tps <= 0 {
		if requiresGPU {
			tps = defaultGPUTokensPerSecond
		} else {
			tps = defaultCPUTokensPerSecond
		}
	}
	totalTokens := inputTokens + outputTokens
	durationMS := int(float64(totalTokens) / tps * 1000)

	return Context{
		TaskType:              taskType,
		Complexity:             complexity,
		EstimatedInputTokens:   inputTokens,
		EstimatedOutputTokens:  outputTokens,
		EstimatedDurationMS:    durationMS,
		RequiresGPU:            requiresGPU,
		ModelPreference:        p.Model,
		Priority:               priority,
	}
}

func classifyTaskType(p RequestPayload) TaskType {
	switch {
	case summarizeKeyword.MatchString(p.Prompt) || summarizeKeyword.MatchString(p.System):
		return TaskSummarization
	case classifyKeyword.MatchString(p.Prompt) || classifyKeyword.MatchString(p.System):
		return TaskClassification
	case extractKeyword.MatchString(p.Prompt) || extractKeyword.MatchString(p.System):
		return TaskExtraction
	case embedModelPattern.MatchString(p.Model):
		return TaskEmbedding
	case p.HasMessages:
		return TaskChat
	default:
		return TaskGeneration
	}
}

func classifyComplexity(p RequestPayload) Complexity {
	length := len(p.Prompt)
	detailed := detailKeyword.MatchString(p.Prompt)

	switch {
	case detailed:
		return ComplexityHigh
	case length <= 200:
		return ComplexityLow
	case length <= 2000:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

func estimateInputTokens(text string) int {
	chars := len([]rune(text))
	tokens := int(float64(chars) / 3.5)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func estimateOutputTokens(taskType TaskType, inputTokens int) int {
	switch taskType {
	case TaskSummarization:
		return int(0.3 * float64(inputTokens))
	case TaskGeneration:
		return 2 * inputTokens
	case TaskClassification:
		return 32
	case TaskEmbedding:
		return 0
	default:
		return inputTokens
	}
}

var modelSizeSuffix = regexp.MustCompile(`:(\d+)([bB])`)

// modelParamBillions parses a model tag suffix like ":13b" or ":70b" into
// a parameter count in billions. Unparseable tags default to 8B, matching
// the HybridRouter's fallback (spec.md §4.8).
func modelParamBillions(tag string) int {
	matches := modelSizeSuffix.FindStringSubmatch(tag)
	if len(matches) != 3 {
		return 8
	}
	n := 0
	for _, c := range matches[1] {
		n = n*10 + int(c-'0')
	}
	return n
}
