package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-go-golems/quill/pkg/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfg is loaded once flags are parsed, before any command runs.
var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "quill",
	Short: "quill drafts emails with a local LLM through a short guided dialogue",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, err := cmd.Flags().GetString("config")
		if err != nil {
			return err
		}
		if err := config.Init(viper.GetViper(), configPath, cmd.Flags()); err != nil {
			return err
		}
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		// reinitialize the logger because we can now parse --log-level and co
		// from the command line flag
		return InitLogger(logConfigFrom(cfg))
	},
	SilenceUsage: true,
}

func init() {
	config.AddFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newChatCommand(),
		newRunCommand(),
		newComposeCommand(),
		newConversationsCommand(),
		newModelsCommand(),
		newConfigCommand(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Debug().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
