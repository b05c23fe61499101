package main

import (
	"fmt"

	"github.com/go-go-golems/quill/pkg/stream"
	"github.com/spf13/cobra"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the local Ollama server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := stream.NewOllamaClientFromEnvironment()
			if err != nil {
				return err
			}
			models, err := client.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
