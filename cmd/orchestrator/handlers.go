// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"net/http"

	"github.com/AleutianAI/sollol/internal/longform"
	"github.com/AleutianAI/sollol/internal/workflow"
)

type workflowRequest struct {
	Query  string `json:"query"`
	Refine int    `json:"refine"`
}

// newWorkflowHandler exposes CollaborativeWorkflow.Run as a single POST
// endpoint: `{"query": "...", "refine": 1}` in, a workflow.Document out.
func newWorkflowHandler(wf *workflow.Workflow) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req workflowRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		doc, err := wf.Run(r.Context(), req.Query, req.Refine)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(doc)
	})
}

type longformRequest struct {
	Query string `json:"query"`
}

// newLongformHandler exposes LongformEngine.Run as a single POST
// endpoint: `{"query": "..."}` in, a longform.Report out.
func newLongformHandler(engine *longform.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req longformRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		report, err := engine.Run(r.Context(), req.Query)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(report)
	})
}
