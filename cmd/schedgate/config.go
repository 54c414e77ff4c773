package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/schedgate/config"
)

func configCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration with secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(cmd.Context(), opts.configPath)
				if err != nil {
					return err
				}
				return cfg.Dump(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Report every configuration problem",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(cmd.Context(), opts); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
				return nil
			},
		},
	)
	return cmd
}
