package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/quill/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the selected conversation in the terminal UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := InitLogger(tuiLogConfig(logConfigFrom(cfg))); err != nil {
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

			options := []tea.ProgramOption{
				tea.WithAltScreen(),
				tea.WithMouseCellMotion(), // turn on mouse support so we can track the mouse wheel
			}
			if !isatty.IsTerminal(os.Stdin.Fd()) {
				tty, err := ui.OpenTTY()
				if err != nil {
					return err
				}
				defer func() {
					_ = tty.Close()
				}()
				options = append(options, tea.WithInput(tty))
			}

			p := tea.NewProgram(ui.NewModel(ctx, a.engine), options...)
			a.router.AddEventHandler("ui-forward", ui.ForwardEvents(p))

			return a.runWithRouter(ctx, func(ctx context.Context) error {
				go func() {
					<-ctx.Done()
					p.Quit()
				}()
				_, err := p.Run()
				return err
			})
		},
	}
	return cmd
}
