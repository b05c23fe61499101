package ui

import "github.com/charmbracelet/lipgloss"

type Style struct {
	UserMessage      lipgloss.Style
	AssistantMessage lipgloss.Style
	FocusedInput     lipgloss.Style
	UnfocusedInput   lipgloss.Style

	Header lipgloss.Style
	Status lipgloss.Style
	Error  lipgloss.Style
}

type BorderColors struct {
	Assistant string
	User      string
	Focused   string
	Error     string
}

func DefaultStyles() *Style {
	lightModeColors := BorderColors{
		Assistant: "#CCCCCC",
		User:      "#FFB6C1", // Light pink
		Focused:   "#FFFF99", // Light yellow
		Error:     "#CC0000",
	}

	darkModeColors := BorderColors{
		Assistant: "#444444",
		User:      "#DD7090",
		Focused:   "#DDDD77",
		Error:     "#FF5555",
	}

	return &Style{
		AssistantMessage: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Assistant,
				Dark:  darkModeColors.Assistant,
			}),
		UserMessage: lipgloss.NewStyle().Border(lipgloss.ThickBorder()).
			Padding(0, 1).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.User,
				Dark:  darkModeColors.User,
			}),
		FocusedInput: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Focused,
				Dark:  darkModeColors.Focused,
			}),
		UnfocusedInput: lipgloss.NewStyle().Border(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Assistant,
				Dark:  darkModeColors.Assistant,
			}),
		Header: lipgloss.NewStyle().Bold(true).Padding(0, 1),
		Status: lipgloss.NewStyle().Faint(true).Padding(0, 1),
		Error: lipgloss.NewStyle().Padding(0, 1).
			Foreground(lipgloss.AdaptiveColor{
				Light: lightModeColors.Error,
				Dark:  darkModeColors.Error,
			}),
	}
}
