package ui

import (
	"io"

	"github.com/charmbracelet/glamour/ansi"
	"github.com/charmbracelet/lipgloss"
	"github.com/samsaffron/term-agent/internal/config"
)

// Theme defines the color palette for the UI
type Theme struct {
	Primary   lipgloss.Color // labels, highlights
	Secondary lipgloss.Color // agent panel, headings
	Success   lipgloss.Color
	Error     lipgloss.Color
	Warning   lipgloss.Color // user panel
	Muted     lipgloss.Color // progress content
	Text      lipgloss.Color
}

// DefaultTheme returns the default color theme (gruvbox)
func DefaultTheme() *Theme {
	return &Theme{
		Primary:   lipgloss.Color("#b8bb26"), // gruvbox green
		Secondary: lipgloss.Color("#83a598"), // gruvbox aqua
		Success:   lipgloss.Color("#b8bb26"),
		Error:     lipgloss.Color("#fb4934"), // gruvbox red
		Warning:   lipgloss.Color("#fabd2f"), // gruvbox yellow
		Muted:     lipgloss.Color("#928374"), // gruvbox gray
		Text:      lipgloss.Color("#ebdbb2"), // gruvbox foreground
	}
}

// ThemeFromConfig creates a theme with config overrides applied
func ThemeFromConfig(cfg config.ThemeConfig) *Theme {
	theme := DefaultTheme()
	if cfg.Primary != "" {
		theme.Primary = lipgloss.Color(cfg.Primary)
		theme.Success = lipgloss.Color(cfg.Primary)
	}
	if cfg.Secondary != "" {
		theme.Secondary = lipgloss.Color(cfg.Secondary)
	}
	if cfg.Error != "" {
		theme.Error = lipgloss.Color(cfg.Error)
	}
	if cfg.Warning != "" {
		theme.Warning = lipgloss.Color(cfg.Warning)
	}
	if cfg.Muted != "" {
		theme.Muted = lipgloss.Color(cfg.Muted)
	}
	return theme
}

// Styles holds the lipgloss styles of the chat surface, bound to one output.
type Styles struct {
	theme *Theme

	Title      lipgloss.Style
	Label      lipgloss.Style // progress label ("THOUGHT:")
	Progress   lipgloss.Style // progress content
	UserTitle  lipgloss.Style
	UserPanel  lipgloss.Style
	AgentTitle lipgloss.Style
	AgentPanel lipgloss.Style
	Notice     lipgloss.Style
	Error      lipgloss.Style
	Muted      lipgloss.Style
}

// NewStyles creates styles with a specific theme for the given output
func NewStyles(output io.Writer, theme *Theme) *Styles {
	r := lipgloss.NewRenderer(output)

	return &Styles{
		theme: theme,

		Title: r.NewStyle().
			Bold(true).
			Foreground(theme.Text),

		Label: r.NewStyle().
			Bold(true).
			Foreground(theme.Primary),

		Progress: r.NewStyle().
			Foreground(theme.Muted),

		UserTitle: r.NewStyle().
			Bold(true).
			Foreground(theme.Warning),

		UserPanel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Warning).
			Padding(0, 1),

		AgentTitle: r.NewStyle().
			Bold(true).
			Foreground(theme.Secondary),

		AgentPanel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Secondary).
			Padding(0, 1),

		Notice: r.NewStyle().
			Bold(true).
			Foreground(theme.Warning),

		Error: r.NewStyle().
			Bold(true).
			Foreground(theme.Error),

		Muted: r.NewStyle().
			Foreground(theme.Muted),
	}
}

// Theme returns the theme used by these styles
func (s *Styles) Theme() *Theme {
	return s.theme
}

// GlamourStyleFromTheme creates a glamour StyleConfig from the given theme
func GlamourStyleFromTheme(theme *Theme) ansi.StyleConfig {
	primary := string(theme.Primary)
	secondary := string(theme.Secondary)
	warning := string(theme.Warning)
	muted := string(theme.Muted)
	text := string(theme.Text)

	return ansi.StyleConfig{
		Document: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &text,
			},
		},
		BlockQuote: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color:  &warning,
				Italic: boolPtr(true),
			},
			Indent: uintPtr(2),
		},
		List: ansi.StyleList{
			LevelIndent: 2,
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: &text,
				},
			},
		},
		Heading: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				BlockPrefix: "\n",
				Color:       &secondary,
				Bold:        boolPtr(true),
			},
		},
		Emph: ansi.StylePrimitive{
			Color:  &warning,
			Italic: boolPtr(true),
		},
		Strong: ansi.StylePrimitive{
			Bold:  boolPtr(true),
			Color: &primary,
		},
		HorizontalRule: ansi.StylePrimitive{
			Color:  &muted,
			Format: "\n--------\n",
		},
		Item: ansi.StylePrimitive{
			BlockPrefix: "• ",
		},
		Enumeration: ansi.StylePrimitive{
			BlockPrefix: ". ",
			Color:       &secondary,
		},
		Link: ansi.StylePrimitive{
			Color:     &secondary,
			Underline: boolPtr(true),
		},
		LinkText: ansi.StylePrimitive{
			Color: &primary,
		},
		Code: ansi.StyleBlock{
			StylePrimitive: ansi.StylePrimitive{
				Color: &primary,
			},
		},
		CodeBlock: ansi.StyleCodeBlock{
			StyleBlock: ansi.StyleBlock{
				StylePrimitive: ansi.StylePrimitive{
					Color: &text,
				},
			},
		},
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func uintPtr(u uint) *uint {
	return &u
}
