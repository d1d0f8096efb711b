// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/groundgate/groundgate/services/validator"
	"github.com/groundgate/groundgate/services/validator/recorder"
)

func runQuality(cmd *cobra.Command, args []string) error {
	cfg, err := validator.LoadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := recorder.OpenStore(cfg.Store, nil)
	if err != nil {
		return fmt.Errorf("opening record store: %w", err)
	}
	defer store.Close()

	report, err := store.QualityReport()
	if err != nil {
		return fmt.Errorf("aggregating quality report: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("decisions:                        %d\n", report.Decisions)
	fmt.Printf("request failure rate:             %.4f\n", report.RequestFailureRate)
	fmt.Printf("refusal recall (source required): %.4f\n", report.RefusalRecallOnSourceRequired)
	fmt.Printf("validator-only refusal rate:      %.4f\n", report.ValidatorOnlyRefusalRateOnSourceRequired)
	fmt.Printf("grounded answer rate (in KB):     %.4f\n", report.GroundedAnswerRateInKB)
	fmt.Printf("false refusal rate (in KB):       %.4f\n", report.FalseRefusalRateInKB)
	return nil
}
