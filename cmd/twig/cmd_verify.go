package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify object store integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := r.Store.Verify()
			if err != nil {
				return err
			}

			if len(report.Corrupt) > 0 {
				for _, h := range report.Corrupt {
					fmt.Fprintf(cmd.OutOrStdout(), "corrupt: %s\n", h)
				}
				return fmt.Errorf("verify: %d corrupt object(s) out of %d", len(report.Corrupt), report.Objects)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "ok: verified %d object(s)\n", report.Objects)
			return nil
		},
	}
}
