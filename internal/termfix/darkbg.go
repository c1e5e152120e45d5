// ABOUTME: Fixes the terminal color setup before BubbleTea's init() can query the terminal
// ABOUTME: Import with _ ahead of any bubbletea import; honors NO_COLOR for lipgloss output

package termfix

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

func init() {
	// With an explicit background lipgloss skips the OSC 10/11 query whose
	// late reply would otherwise land in the prompt line. Nothing in this
	// package may import bubbletea.
	lipgloss.SetHasDarkBackground(true)

	if NoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// NoColor reports whether the user asked for uncolored output.
func NoColor() bool {
	v, ok := os.LookupEnv("NO_COLOR")
	return ok && v != ""
}
