package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/remote"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [remote]",
		Short: "Download objects and update remote-tracking refs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			remoteArg := ""
			if len(args) == 1 {
				remoteArg = args[0]
			}
			remoteName, transport, err := openTransport(r, remoteArg)
			if err != nil {
				return err
			}

			res, err := remote.Fetch(cmd.Context(), transport, r, remoteName)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "fetched %d ref(s), %d object(s) from %s\n", len(res.Refs), res.Written, remoteName)
			return nil
		},
	}
}
