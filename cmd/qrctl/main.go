package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartqr/internal/engine/smartqr"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var cfgErr *smartqr.ConfigError
		if errors.As(err, &cfgErr) {
			for _, msg := range cfgErr.Problems {
				fmt.Fprintln(os.Stderr, msg)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "qrctl",
		Short:        "SmartQR rule tooling",
		Version:      version,
		SilenceUsage: true,
	}

	root.AddCommand(newValidateCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newTokenCmd())

	return root
}

func newValidateCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a multi-URL config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("config file is required")
			}
			cfg, err := smartqr.LoadConfigFile(file)
			if err != nil {
				return err
			}
			if err := smartqr.ValidateConfig(cfg); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "config ok (%d rules)\n", len(cfg.Rules))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to YAML or JSON config")

	return cmd
}
