// Package terminal detects the capabilities of the adaptor's output streams.
//
// Render farm workers usually pipe both stdout and stderr into a log, so
// colors and spinners only turn on for an interactive TTY.
package terminal

import (
	"os"

	"golang.org/x/term"
)

// Info holds terminal capability information.
type Info struct {
	IsTTY     bool
	NoColor   bool
	Width     int
	Height    int
	ForceFlag bool // Set when --no-color flag is used
}

// Detect returns terminal information for stdout.
func Detect() *Info {
	return ForFile(os.Stdout)
}

// ForFile returns terminal information for f.
func ForFile(f *os.File) *Info {
	fd := int(f.Fd())
	isTTY := term.IsTerminal(fd)

	width, height := 80, 24

	if isTTY {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	// https://no-color.org/
	_, noColor := os.LookupEnv("NO_COLOR")

	if os.Getenv("TERM") == "dumb" {
		noColor = true
	}

	return &Info{
		IsTTY:   isTTY,
		NoColor: noColor,
		Width:   width,
		Height:  height,
	}
}

// ColorEnabled returns true if colored output should be used.
func (t *Info) ColorEnabled() bool {
	if t.ForceFlag {
		return false
	}

	return t.IsTTY && !t.NoColor
}

// SpinnersEnabled returns true if spinners should be used.
func (t *Info) SpinnersEnabled() bool {
	return t.IsTTY && !t.NoColor && !t.ForceFlag
}
