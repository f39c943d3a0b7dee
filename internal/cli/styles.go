// pattern: Functional Core
package cli

import (
	catppuccin "github.com/catppuccin/go"
	"github.com/charmbracelet/lipgloss"
)

// Styles renders CLI output in the configured catppuccin flavour. Plain
// styles render text unchanged.
type Styles struct {
	flavor  catppuccin.Flavor
	colored bool
}

// NewStyles returns styles for themeName. With colored false every style is a
// no-op, for pipes and redirected output.
func NewStyles(themeName string, colored bool) *Styles {
	return &Styles{flavor: flavorFromName(themeName), colored: colored}
}

func flavorFromName(name string) catppuccin.Flavor {
	switch name {
	case "latte":
		return catppuccin.Latte
	case "frappe":
		return catppuccin.Frappe
	case "macchiato":
		return catppuccin.Macchiato
	default:
		return catppuccin.Mocha
	}
}

func (s *Styles) fg(c catppuccin.Color) lipgloss.Style {
	if !s.colored {
		return lipgloss.NewStyle()
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(c.Hex))
}

// Success renders confirmations.
func (s *Styles) Success(text string) string {
	return s.fg(s.flavor.Green()).Render(text)
}

// Failure renders errors.
func (s *Styles) Failure(text string) string {
	st := s.fg(s.flavor.Red())
	if s.colored {
		st = st.Bold(true)
	}
	return st.Render(text)
}

// Label renders field names in status output.
func (s *Styles) Label(text string) string {
	return s.fg(s.flavor.Mauve()).Render(text)
}

// Muted renders secondary detail.
func (s *Styles) Muted(text string) string {
	return s.fg(s.flavor.Overlay1()).Render(text)
}
