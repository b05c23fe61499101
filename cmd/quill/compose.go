package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-go-golems/quill/pkg/email"
	"github.com/go-go-golems/quill/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

// askDraft fills in the empty fields of d interactively.
func askDraft(ui_ *input.UI, d *email.Draft) error {
	fields := []struct {
		query string
		value *string
	}{
		{"Subject", &d.Subject},
		{"To", &d.Recipient},
		{"From", &d.Sender},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		answer, err := ui_.Ask(f.query, &input.Options{
			Required:  true,
			Loop:      true,
			HideOrder: true,
		})
		if err != nil {
			return err
		}
		*f.value = answer
	}

	if d.Body != "" {
		return nil
	}
	var lines []string
	for {
		line, err := ui_.Ask("Body (empty line to finish)", &input.Options{
			HideOrder: true,
		})
		if err != nil {
			return err
		}
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	d.Body = strings.Join(lines, "\n")
	return nil
}

func confirm(ui_ *input.UI, query string) (bool, error) {
	answer, err := ui_.Ask(query, &input.Options{
		Default:   "y",
		Required:  true,
		Loop:      true,
		HideOrder: true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return fmt.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "Y", nil
}

func newComposeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Write an email by hand and add it to the selected conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			d := email.Draft{}
			d.Subject, _ = cmd.Flags().GetString("subject")
			d.Recipient, _ = cmd.Flags().GetString("to")
			d.Sender, _ = cmd.Flags().GetString("from")
			d.Body, _ = cmd.Flags().GetString("body")
			yes, _ := cmd.Flags().GetBool("yes")

			var rw io.ReadWriter
			if d.Subject == "" || d.Recipient == "" || d.Sender == "" || d.Body == "" || !yes {
				tty_, err := ui.OpenTTY()
				if err != nil {
					return errors.Wrap(err, "compose needs a terminal or every field as a flag")
				}
				defer func() {
					_ = tty_.Close()
				}()
				rw = tty_
			}

			var ui_ *input.UI
			if rw != nil {
				ui_ = &input.UI{Writer: rw, Reader: rw}
				if err := askDraft(ui_, &d); err != nil {
					return err
				}
			}
			if d.IsEmpty() {
				return errors.New("empty draft")
			}

			preview, err := d.RenderPreview(time.Now(), 80)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), preview)

			if !yes {
				ok, err := confirm(ui_, "\nAdd this email to the conversation? [y/n]")
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

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

			if err := a.engine.AppendDraft(ctx, d); err != nil {
				return err
			}
			log.Info().Str("conversation_id", a.engine.Snapshot().SelectedID).Msg("added email")
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Subject line")
	cmd.Flags().String("to", "", "Recipient")
	cmd.Flags().String("from", "", "Sender")
	cmd.Flags().String("body", "", "Body text")
	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	return cmd
}
