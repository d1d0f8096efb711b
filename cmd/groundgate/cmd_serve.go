// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/groundgate/groundgate/services/validator"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := validator.LoadConfig(configPath)
	if err != nil {
		return err
	}
	svc, err := validator.New(*cfg)
	if err != nil {
		return fmt.Errorf("initializing validator service: %w", err)
	}
	return svc.Run()
}
