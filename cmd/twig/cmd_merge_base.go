package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeBaseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge-base <revision> <revision>",
		Short: "Find a common ancestor of two commits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			a, err := r.ResolveRevision(args[0])
			if err != nil {
				return err
			}
			b, err := r.ResolveRevision(args[1])
			if err != nil {
				return err
			}

			base, err := r.MergeBase(a, b)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), base)
			return nil
		},
	}
}
