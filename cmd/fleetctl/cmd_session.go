// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func runModeCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.Mode)
		return nil
	}
	switch args[0] {
	case "standard", "distributed":
		s.Mode = args[0]
	default:
		return newExitError(exitUserError, fmt.Errorf("unknown mode %q: want standard or distributed", args[0]))
	}
	return saveSession(s)
}

func runStrategyCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.Strategy)
		return nil
	}
	switch args[0] {
	case "auto", "single", "parallel", "multi", "gpu":
		s.Strategy = args[0]
	default:
		return newExitError(exitUserError, fmt.Errorf("unknown strategy %q", args[0]))
	}
	return saveSession(s)
}

func runCollabCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(onOff(s.Collab))
		return nil
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return newExitError(exitUserError, err)
	}
	s.Collab = on
	return saveSession(s)
}

func runRefineCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.Refine)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return newExitError(exitUserError, fmt.Errorf("refine wants a non-negative integer, got %q", args[0]))
	}
	s.Refine = n
	return saveSession(s)
}

func runTimeoutCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.TimeoutSecs)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n <= 0 {
		return newExitError(exitUserError, fmt.Errorf("timeout wants a positive number of seconds, got %q", args[0]))
	}
	s.TimeoutSecs = n
	return saveSession(s)
}

func runASTCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(onOff(s.AST))
		return nil
	}
	on, err := parseOnOff(args[0])
	if err != nil {
		return newExitError(exitUserError, err)
	}
	s.AST = on
	return saveSession(s)
}

func runQualityCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.Quality)
		return nil
	}
	q, err := strconv.ParseFloat(args[0], 64)
	if err != nil || q < 0 || q > 1 {
		return newExitError(exitUserError, fmt.Errorf("quality wants a number in [0,1], got %q", args[0]))
	}
	s.Quality = q
	return saveSession(s)
}

func runQRetriesCommand(cmd *cobra.Command, args []string) error {
	s, err := loadSession()
	if err != nil {
		return newExitError(exitUserError, err)
	}
	if len(args) == 0 {
		fmt.Println(s.QRetries)
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return newExitError(exitUserError, fmt.Errorf("qretries wants a non-negative integer, got %q", args[0]))
	}
	s.QRetries = n
	return saveSession(s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func parseOnOff(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("want on or off, got %q", s)
	}
}
