// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent implements the agent runtime (component I): role-typed
// prompt templates, JSON extraction, schema validation, and iterative
// JSON-Patch repair over a node's /api/generate call.
//
// Every role exposes the same capability set — name, system prompt,
// expected schema, timeout, target model — as data, not a new code path;
// Researcher, Critic, Editor, and Storyteller differ only in the Role
// value passed to New.
package agent

import (
	"time"

	"github.com/google/uuid"
)

// Role is prompt-template and schema data describing one agent
// personality. Custom roles are constructed the same way as the
// built-ins below; there is no separate "custom agent" code path.
type Role struct {
	Name         string
	SystemPrompt string
	Schema       Schema
	Timeout      time.Duration
	PromptFn     func(input string) string
}

const defaultTimeout = 300 * time.Second
const editorTimeout = 600 * time.Second

// Researcher extracts key facts, context, and topics from an input.
// Grounded on original_source/agents/researcher.py.
var Researcher = Role{
	Name: "Researcher",
	SystemPrompt: "You are a research agent. Your role is to extract key facts, " +
		"gather relevant context, and identify important topics from the input. " +
		"Provide comprehensive background information in JSON format with fields: " +
		"key_facts (list), context (string), topics (list).",
	Schema: Schema{
		"key_facts": TypeStringList,
		"context":   TypeString,
		"topics":    TypeStringList,
	},
	Timeout: defaultTimeout,
	PromptFn: func(input string) string {
		return "Research and extract key information from the following:\n\n" + input +
			"\n\nProvide output as JSON."
	},
}

// Critic reviews a piece of content and reports issues and a quality
// score. Grounded on distributed_orchestrator.py's run_multi_critic
// prompt shape; the schema follows the same key_facts/context pattern
// as the other roles, narrowed to critique fields.
var Critic = Role{
	Name: "Critic",
	SystemPrompt: "You are a critical reviewer. Identify factual errors, gaps, " +
		"unclear reasoning, and missing context in the input. Output JSON with " +
		"fields: issues (list of strings), strengths (list of strings), " +
		"quality_score (number from 0 to 1).",
	Schema: Schema{
		"issues":        TypeStringList,
		"strengths":     TypeStringList,
		"quality_score": TypeNumber,
	},
	Timeout: defaultTimeout,
	PromptFn: func(input string) string {
		return "Review and critique the following:\n\n" + input
	},
}

// Editor synthesizes prior agent output into a comprehensive, structured
// document. Grounded on original_source/agents/editor.py.
var Editor = Role{
	Name: "Editor",
	SystemPrompt: "You are an expert editor. Synthesize information into a " +
		"comprehensive, well-structured JSON output. Provide thorough " +
		"explanations with concrete examples. Output valid JSON with fields: " +
		"summary (string), key_points (list of strings), detailed_explanation " +
		"(string with full explanation), examples (list of concrete examples), " +
		"practical_applications (list of real-world uses).",
	Schema: Schema{
		"summary":               TypeString,
		"key_points":            TypeStringList,
		"detailed_explanation":  TypeString,
		"examples":              TypeStringList,
		"practical_applications": TypeStringList,
	},
	Timeout: editorTimeout,
	PromptFn: func(input string) string {
		return `Synthesize this information into comprehensive JSON:

` + input + `

Create a complete JSON structure with:
- summary: Brief 1-2 sentence overview
- key_points: List of 5-7 essential facts/concepts
- detailed_explanation: Full, thorough explanation covering all aspects, underlying mechanisms, and theory
- examples: List of 3-5 concrete, specific examples
- practical_applications: List of 3-5 real-world applications or use cases

Be comprehensive and detailed. Provide depth, not just surface-level information.
Output valid JSON now:`
	},
}

// Storyteller produces creative narrative content in response to a
// prompt, used by the longform engine's storytelling content type.
var Storyteller = Role{
	Name: "Storyteller",
	SystemPrompt: "You are a creative storyteller. Write vivid, engaging " +
		"narrative prose with dialogue and character development. Output JSON " +
		"with a 'story' field containing your narrative.",
	Schema: Schema{
		"story": TypeString,
	},
	Timeout: defaultTimeout,
	PromptFn: func(input string) string {
		return "Write a creative, engaging story based on this request:\n\n" + input
	},
}

// Task is one fan-out unit submitted to the runtime (spec.md's AgentTask).
type Task struct {
	TaskID   string `validate:"required"`
	Role     Role
	Prompt   string `validate:"required"`
	Model    string `validate:"required"`
	Timeout  time.Duration
	Priority int
}

// DefaultTaskPriority is spec.md §3's default AgentTask priority (1..10).
const DefaultTaskPriority = 5

// NewTask builds a Task whose id joins the role name, a short random
// suffix and index with underscores ("<role>_<suffix>_<index>").
func NewTask(role Role, index int, prompt, model string) Task {
	timeout := role.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return Task{
		TaskID:   role.Name + "_" + uuidShort() + "_" + itoa(index),
		Role:     role,
		Prompt:   prompt,
		Model:    model,
		Timeout:  timeout,
		Priority: DefaultTaskPriority,
	}
}

func uuidShort() string {
	id := uuid.New().String()
	return id[:8]
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// Status is the outcome category of a Result, per spec.md §4.9's output
// wrapping contract.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Format reports whether Result.Data holds validated JSON or a raw-text
// fallback.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Result is one completed agent call (spec.md's AgentResult, wrapped per
// §4.9's public output contract).
type Result struct {
	Agent      string
	TaskID     string
	NodeURL    string
	DurationMS float64
	Status     Status
	Format     Format
	Data       map[string]any
	RawText    string
	Err        error
}
