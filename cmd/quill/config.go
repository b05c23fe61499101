package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := cfg.YAML()
			if err != nil {
				return err
			}
			if f := viper.ConfigFileUsed(); f != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# loaded from %s\n", f)
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}
