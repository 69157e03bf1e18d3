package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorInk     = lipgloss.Color("#F2F4F8")
	ColorDim     = lipgloss.Color("#8189A0")
	ColorAccent  = lipgloss.Color("#B48EAD")
	ColorSuccess = lipgloss.Color("#A3BE8C")
	ColorWarn    = lipgloss.Color("#EBCB8B")
	ColorFail    = lipgloss.Color("#BF616A")
)
