package style

import (
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
)

// --- Reusable Colors ---
var (
	colorPink      = lipgloss.Color("205")
	colorDarkGray  = lipgloss.Color("240")
	colorLightGray = lipgloss.Color("229")
	colorCyan      = lipgloss.Color("212")
	colorPurple    = lipgloss.Color("99")
	colorRed       = lipgloss.Color("196")
	colorGreen     = lipgloss.Color("42")
)

// --- General Purpose Styles ---
var (
	ErrorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	SuccessStyle = lipgloss.NewStyle().Foreground(colorGreen)
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorPink)
	HelpStyle    = lipgloss.NewStyle().Faint(true)
	FileStyle    = lipgloss.NewStyle().Foreground(colorLightGray)
)

// --- Table Styles ---
var (
	HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPurple)
	MutedStyle  = lipgloss.NewStyle().Foreground(colorDarkGray)
	ReadStyle   = lipgloss.NewStyle().Foreground(colorCyan)
	WriteStyle  = lipgloss.NewStyle().Foreground(colorPurple)
)

// --- Common Components ---

// NewSpinner creates a spinner with a consistent style.
func NewSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorPink)
	return s
}

// NewProgress creates a progress bar in the same palette as the spinner.
func NewProgress() progress.Model {
	return progress.New(progress.WithScaledGradient("#FF7CCB", "#FDFF8C"), progress.WithWidth(40))
}
