// Package ui holds the terminal styling shared by blocksync commands.
package ui

import (
	"github.com/fatih/color"
)

// Symbols prefixed to status lines.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
)

var (
	success = color.New(color.FgGreen)
	failure = color.New(color.FgRed)
	warning = color.New(color.FgYellow)
	alert   = color.New(color.FgWhite, color.BgRed, color.Bold)
)

func mark(c *color.Color, symbol, msg string) string {
	if msg == "" {
		return c.Sprint(symbol)
	}
	return c.Sprint(symbol) + " " + msg
}

// StatusSuccess prefixes msg with a green check mark.
func StatusSuccess(msg string) string { return mark(success, SymbolSuccess, msg) }

// StatusError prefixes msg with a red cross.
func StatusError(msg string) string { return mark(failure, SymbolError, msg) }

// StatusWarning prefixes msg with a yellow warning sign.
func StatusWarning(msg string) string { return mark(warning, SymbolWarning, msg) }

// StatusAlert renders msg as a banner for failures that leave the store in
// doubt, such as a failed rollback.
func StatusAlert(msg string) string {
	return alert.Sprint(" " + SymbolError + " " + msg + " ")
}

// DisableColors turns off all color output, for --no-color and pipes.
func DisableColors() { color.NoColor = true }

// EnableColors forces color output even when stdout is not a terminal.
func EnableColors() { color.NoColor = false }

// IsColorEnabled reports whether color output is on.
func IsColorEnabled() bool { return !color.NoColor }
