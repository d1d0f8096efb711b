// Copyright (C) 2025 Groundgate Authors (dev@groundgate.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the groundgate CLI.
package ux

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	ColorAccept = lipgloss.Color("#2CD76B") // green - accepted answers
	ColorRefuse = lipgloss.Color("#E74C3C") // red - refusals
	ColorRetry  = lipgloss.Color("#F4D03F") // amber - retries in flight
	ColorAccent = lipgloss.Color("#20B9B4") // teal - headings
	ColorMuted  = lipgloss.Color("#5C6B73") // slate - secondary text
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title  lipgloss.Style
	Bold   lipgloss.Style
	Muted  lipgloss.Style
	Accept lipgloss.Style
	Refuse lipgloss.Style
	Retry  lipgloss.Style
	Box    lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:   lipgloss.NewStyle().Bold(true),
	Muted:  lipgloss.NewStyle().Foreground(ColorMuted),
	Accept: lipgloss.NewStyle().Bold(true).Foreground(ColorAccept),
	Refuse: lipgloss.NewStyle().Bold(true).Foreground(ColorRefuse),
	Retry:  lipgloss.NewStyle().Foreground(ColorRetry),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1),
}

// Verdict prints the decision action styled by outcome.
func Verdict(action string) {
	switch action {
	case "ACCEPT":
		fmt.Printf("%s %s\n", Styles.Accept.Render("✓"), Styles.Accept.Render(action))
	case "REFUSE":
		fmt.Printf("%s %s\n", Styles.Refuse.Render("✗"), Styles.Refuse.Render(action))
	default:
		fmt.Println(Styles.Retry.Render(action))
	}
}

// Field prints a labeled value with a muted label.
func Field(label, value string) {
	fmt.Printf("%s %s\n", Styles.Muted.Render(label+":"), value)
}

// Answer prints the final text in a box.
func Answer(text string) {
	fmt.Println(Styles.Box.Width(72).Render(text))
}

// Citations prints the cited passage ids as a bulleted list.
func Citations(ids []string) {
	if len(ids) == 0 {
		return
	}
	fmt.Println(Styles.Muted.Render("citations:"))
	for _, id := range ids {
		fmt.Printf("  %s %s\n", Styles.Muted.Render("•"), id)
	}
}
