package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
)

// Draft is an email composed by hand, outside of the scripted dialogue.
type Draft struct {
	Subject   string `yaml:"subject" json:"subject"`
	Recipient string `yaml:"recipient" json:"recipient"`
	Sender    string `yaml:"sender" json:"sender"`
	Body      string `yaml:"body" json:"body"`
}

func (d Draft) IsEmpty() bool {
	return strings.TrimSpace(d.Subject) == "" &&
		strings.TrimSpace(d.Recipient) == "" &&
		strings.TrimSpace(d.Sender) == "" &&
		strings.TrimSpace(d.Body) == ""
}

// Message renders the draft as the content of a user message: header lines
// followed by a blank line and the body.
func (d Draft) Message() string {
	return fmt.Sprintf("\nSubject: %s\nTo: %s\nFrom: %s\n\n%s", d.Subject, d.Recipient, d.Sender, d.Body)
}

// Preview renders the draft as markdown, dated now. Every body line becomes
// its own paragraph.
func (d Draft) Preview(now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "**Date:** %s  \n", FormatDate(now))
	fmt.Fprintf(&sb, "**From:** %s  \n", d.Sender)
	fmt.Fprintf(&sb, "**To:** %s  \n", d.Recipient)
	fmt.Fprintf(&sb, "**Subject:** **%s**\n\n", d.Subject)
	sb.WriteString("---\n")
	for _, line := range strings.Split(d.Body, "\n") {
		sb.WriteString("\n")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderPreview renders Preview for the terminal.
func (d Draft) RenderPreview(now time.Time, width int) (string, error) {
	options := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		options = append(options, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(options...)
	if err != nil {
		return "", errors.Wrap(err, "could not create markdown renderer")
	}
	out, err := r.Render(d.Preview(now))
	if err != nil {
		return "", errors.Wrap(err, "could not render preview")
	}
	return out, nil
}

// FormatDate formats t as "October 15th, 2026".
func FormatDate(t time.Time) string {
	return fmt.Sprintf("%s %d%s, %d", t.Month(), t.Day(), ordinalSuffix(t.Day()), t.Year())
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
