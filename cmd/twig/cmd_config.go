package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config <key> [value]",
		Short: "Get or set repository configuration (user.name, user.signing_key)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			key := args[0]

			if len(args) == 2 {
				switch key {
				case "user.name":
					return r.SetUser(args[1])
				case "user.signing_key":
					return r.SetSigningKey(args[1])
				default:
					return fmt.Errorf("unknown config key %q", key)
				}
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}
			switch key {
			case "user.name":
				fmt.Fprintln(cmd.OutOrStdout(), cfg.User.Name)
			case "user.signing_key":
				fmt.Fprintln(cmd.OutOrStdout(), cfg.User.SigningKey)
			default:
				return fmt.Errorf("unknown config key %q", key)
			}
			return nil
		},
	}
}
