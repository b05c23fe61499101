package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/go-go-golems/quill/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConversationsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"c"},
		Short:   "Manage stored conversations",
	}
	cmd.AddCommand(
		newConversationsListCommand(),
		newConversationsShowCommand(),
		newConversationsDeleteCommand(),
		newConversationsSelectCommand(),
	)
	return cmd
}

func newConversationsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := cfg.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			snapshot, err := s.Load(ctx)
			if err != nil {
				return err
			}
			return writeConversationTable(cmd.OutOrStdout(), snapshot.Conversations, snapshot.SelectedID)
		},
	}
}

func writeConversationTable(w io.Writer, list []*conversation.Conversation, selectedID string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("", "ID", "NAME", "MODEL", "MESSAGES")
	for _, c := range list {
		marker := ""
		if c.ID == selectedID {
			marker = "*"
		}
		t.Row(marker, c.ID, c.Name, c.Model.Name, fmt.Sprintf("%d", c.Len()))
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// conversationMarkdown renders a transcript for glamour.
func conversationMarkdown(c *conversation.Conversation) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", c.Name)
	fmt.Fprintf(&sb, "*model: %s, temperature: %v*\n\n", c.Model.Name, c.Temperature)
	for _, m := range c.Messages {
		fmt.Fprintf(&sb, "**%s**\n\n%s\n\n---\n\n", m.Role, m.Content)
	}
	return sb.String()
}

func newConversationsShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation (default: the selected one)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")

			ctx := cmd.Context()
			s, err := cfg.OpenStore(ctx)
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			snapshot, err := s.Load(ctx)
			if err != nil {
				return err
			}
			id := snapshot.SelectedID
			if len(args) > 0 {
				id = args[0]
			}
			var c *conversation.Conversation
			for _, c_ := range snapshot.Conversations {
				if c_.ID == id {
					c = c_
					break
				}
			}
			if c == nil {
				return errors.Wrapf(conversation.ErrConversationNotFound, "show %q", id)
			}

			out := cmd.OutOrStdout()
			switch format {
			case "yaml":
				enc := yaml.NewEncoder(out)
				enc.SetIndent(2)
				if err := enc.Encode(c); err != nil {
					return err
				}
				return enc.Close()
			case "text":
				for _, m := range c.Messages {
					if _, err := fmt.Fprintln(out, m.View()); err != nil {
						return err
					}
				}
				return nil
			case "markdown":
				rendered, err := glamour.Render(conversationMarkdown(c), "dark")
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(out, rendered)
				return err
			default:
				return errors.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().String("format", "markdown", "Output format (markdown, text, yaml)")
	return cmd
}

func newConversationsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("could not close")
				}
			}()
			return a.engine.Delete(ctx, args[0])
		},
	}
}

func newConversationsSelectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Make a conversation the one chat and compose work on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn().Err(err).Msg("could not close")
				}
			}()
			return a.engine.Select(ctx, args[0])
		},
	}
}
