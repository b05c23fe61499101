package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/quill/pkg/dialogue"
	"github.com/go-go-golems/quill/pkg/engine"
	"github.com/go-go-golems/quill/pkg/events"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// loadAnswers reads a YAML list of scripted answers.
func loadAnswers(r io.Reader) ([]string, error) {
	var answers []string
	if err := yaml.NewDecoder(r).Decode(&answers); err != nil {
		return nil, errors.Wrap(err, "could not parse answers")
	}
	return answers, nil
}

// streamPrinter writes the response deltas of engine events to w.
func streamPrinter(w io.Writer) events.EventHandler {
	return func(ctx context.Context, e *events.Event) error {
		switch e.Type {
		case events.EventTypePartial:
			_, err := fmt.Fprint(w, e.Delta)
			return err
		case events.EventTypeFinal, events.EventTypeInterrupt:
			_, err := fmt.Fprintln(w)
			return err
		case events.EventTypeError:
			_, err := fmt.Fprintf(w, "\n%s\n", e.Error)
			return err
		default:
			return nil
		}
	}
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer the dialogue from a file and stream the generated email to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			answersFile, _ := cmd.Flags().GetString("answers")
			printEvents, _ := cmd.Flags().GetBool("print-events")

			f, err := os.Open(answersFile)
			if err != nil {
				return err
			}
			answers, err := loadAnswers(f)
			_ = f.Close()
			if err != nil {
				return err
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

			if len(answers) != a.engine.Script().Len() {
				return errors.Errorf("expected %d answers, got %d", a.engine.Script().Len(), len(answers))
			}

			out := cmd.OutOrStdout()
			a.router.AddEventHandler("stdout", streamPrinter(out))
			if printEvents {
				a.router.AddHandler("raw-events", events.TopicEngine, a.router.DumpRawEvents)
			}

			return a.runWithRouter(ctx, func(ctx context.Context) error {
				return runDialogue(ctx, a, answers, cmd.ErrOrStderr())
			})
		},
	}
	cmd.Flags().String("answers", "", "YAML file with one answer per dialogue question")
	cmd.Flags().Bool("print-events", false, "Print every engine event as JSON to stderr")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

// runDialogue answers every scripted question on a fresh conversation, shows
// the summary on w and confirms it. Persistence failures are logged and do
// not stop the dialogue.
func runDialogue(ctx context.Context, a *app, answers []string, w io.Writer) error {
	c, err := a.engine.NewConversation(ctx)
	if err = tolerateWriteErrors(err); err != nil {
		return err
	}
	log.Info().Str("conversation_id", c.ID).Msg("running dialogue")

	for _, answer := range answers {
		if err := tolerateWriteErrors(a.engine.HandleSubmit(ctx, answer, 0)); err != nil {
			return err
		}
	}
	snapshot := a.engine.Snapshot()
	if snapshot.State != dialogue.AwaitingConfirmation() {
		return errors.Errorf("dialogue ended in state %s", snapshot.State)
	}
	if last, ok := snapshot.Conversation.Last(); ok {
		_, _ = fmt.Fprintln(w, last.Content)
	}

	return tolerateWriteErrors(a.engine.HandleSubmit(ctx, "yes", 0))
}

func tolerateWriteErrors(err error) error {
	if engine.IsPersistenceOnly(err) {
		log.Warn().Err(err).Msg("could not persist conversation, continuing")
		return nil
	}
	return err
}
