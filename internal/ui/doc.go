// Package ui renders the gree CLI output with lipgloss.
//
// Tables are used for device lists, status snapshots and the property
// catalog. Colors follow the terminal's capabilities, so piping output to a
// file yields plain text with box borders.
package ui
