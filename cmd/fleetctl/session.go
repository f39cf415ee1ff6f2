// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// session is the CLI's persisted state, written by the mode/strategy/
// collab/refine/timeout/ast/quality/qretries commands. run reads back
// strategy, collab, refine, timeout, quality and qretries; mode and ast
// are stored but not read by run. Each fleetctl invocation is its own process, so this small JSON
// file is the only thing carrying settings between them.
type session struct {
	Mode        string  `json:"mode"`
	Strategy    string  `json:"strategy"`
	Collab      bool    `json:"collab"`
	Refine      int     `json:"refine"`
	TimeoutSecs int     `json:"timeout_seconds"`
	AST         bool    `json:"ast"`
	Quality     float64 `json:"quality"`
	QRetries    int     `json:"qretries"`
}

func defaultSession() session {
	return session{
		Mode:        "standard",
		Strategy:    "auto",
		Collab:      true,
		Refine:      0,
		TimeoutSecs: 120,
		AST:         false,
		Quality:     0.6,
		QRetries:    2,
	}
}

func sessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sollol", "fleetctl_session.json"), nil
}

func loadSession() (session, error) {
	path, err := sessionPath()
	if err != nil {
		return session{}, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return defaultSession(), nil
	}
	if err != nil {
		return session{}, err
	}
	s := defaultSession()
	if err := json.Unmarshal(data, &s); err != nil {
		return session{}, err
	}
	return s, nil
}

func saveSession(s session) error {
	path, err := sessionPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultNodesPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".sollol", "nodes.json"), nil
}
