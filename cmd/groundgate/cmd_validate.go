// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/groundgate/groundgate/pkg/ux"
	"github.com/groundgate/groundgate/services/validator"
	"github.com/groundgate/groundgate/services/validator/datatypes"
	"github.com/groundgate/groundgate/services/validator/decision"
)

// runValidate executes one validation cycle in-process and prints the
// terminal decision. Exit status is 0 for ACCEPT, 1 for REFUSE or error.
func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := validator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	orch, err := validator.BuildChain(*cfg, nil)
	if err != nil {
		return fmt.Errorf("initializing validation chain: %w", err)
	}

	var passages []datatypes.Passage
	if passagesPath != "" {
		data, err := os.ReadFile(passagesPath)
		if err != nil {
			return fmt.Errorf("reading passages file: %w", err)
		}
		if err := json.Unmarshal(data, &passages); err != nil {
			return fmt.Errorf("parsing passages file: %w", err)
		}
	}

	spin := ux.NewSpinner("validating answer")
	if !jsonOutput {
		spin.Start()
	}
	outcome, err := orch.Run(context.Background(), decision.Input{
		QueryText: strings.Join(args, " "),
		Draft:     draftText,
		Passages:  passages,
	})
	spin.Stop()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcome)
	}

	ux.Verdict(string(outcome.Final.Action))
	ux.Field("reason", string(outcome.Final.ReasonCode))
	ux.Field("attempts", fmt.Sprintf("%d", len(outcome.Attempts)))
	if outcome.Final.FinalText != "" {
		ux.Answer(outcome.Final.FinalText)
	}
	ux.Citations(outcome.Final.Citations)
	if outcome.Final.Action == datatypes.ActionRefuse {
		os.Exit(1)
	}
	return nil
}
