// Package ansi cleans terminal control sequences out of engine output so log
// rules match the text a user would see.
package ansi

import (
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
)

// Strip removes ANSI escape sequences from a string.
func Strip(s string) string {
	return xansi.Strip(s)
}

// CleanLine strips escape sequences and the carriage returns a PTY adds to
// each line.
func CleanLine(s string) string {
	return strings.TrimRight(Strip(s), "\r")
}
