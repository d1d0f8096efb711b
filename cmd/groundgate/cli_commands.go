// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath   string
	draftText    string
	passagesPath string
	jsonOutput   bool

	rootCmd = &cobra.Command{
		Use:   "groundgate",
		Short: "A grounding and refusal validation gate for RAG answers",
		Long: `Groundgate validates candidate answers against retrieved corpus
passages and decides, per query, whether to accept the answer with citations,
retry drafting with feedback, or refuse.`,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the validation HTTP service",
		Long:  `Starts the Gin HTTP server exposing /v1/validate, /v1/decisions, /v1/quality, and /metrics.`,
		RunE:  runServe,
	}

	validateCmd = &cobra.Command{
		Use:   "validate [question]",
		Short: "Validate one answer from the command line",
		Long: `Runs a single validation cycle in-process, without the HTTP server.
Passages may be supplied as a JSON file via --passages; otherwise the
configured retrieval endpoint is queried.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runValidate,
	}

	qualityCmd = &cobra.Command{
		Use:   "quality",
		Short: "Print offline quality metrics from the record store",
		Long: `Aggregates every recorded decision into the offline quality report.
Opens the record store directly; stop the server first or point --config at a
copy of the store.`,
		RunE: runQuality,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to groundgate.yaml (defaults apply when omitted)")

	validateCmd.Flags().StringVar(&draftText, "draft", "", "candidate answer to validate; drafted by the LLM collaborator when omitted")
	validateCmd.Flags().StringVar(&passagesPath, "passages", "", "JSON file with retrieved passages")
	validateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full outcome as JSON")

	qualityCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the report as JSON")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(qualityCmd)
}
