package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/twig/pkg/remote"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newPushCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "push [remote] [branch]",
		Short: "Push a local branch or tag to a remote",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			remoteArg := ""
			refArg := ""
			switch len(args) {
			case 1:
				candidate := strings.TrimSpace(args[0])
				if isRemoteArg(r, candidate) {
					remoteArg = candidate
				} else {
					refArg = candidate
				}
			case 2:
				remoteArg = strings.TrimSpace(args[0])
				refArg = strings.TrimSpace(args[1])
			}

			if refArg == "" {
				refArg, err = r.CurrentBranch()
				if err != nil {
					return err
				}
				if refArg == "" {
					return fmt.Errorf("cannot infer branch while HEAD is detached; specify branch or full ref")
				}
			}

			remoteName, transport, err := openTransport(r, remoteArg)
			if err != nil {
				return err
			}

			res, err := remote.Push(cmd.Context(), transport, r, remoteName, refArg, force)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			display := pushDisplayName(res.RefName)
			switch {
			case res.UpToDate:
				fmt.Fprintf(out, "everything up-to-date (%s)\n", shortHash(res.NewHash))
			case res.Created:
				fmt.Fprintf(out, "pushed new %s at %s (%d objects)\n", display, shortHash(res.NewHash), res.Uploaded)
			default:
				fmt.Fprintf(out, "pushed %s: %s -> %s (%d objects)\n", display, shortHash(res.OldHash), shortHash(res.NewHash), res.Uploaded)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "allow non-fast-forward update")
	return cmd
}

func pushDisplayName(remoteRef string) string {
	if name, ok := strings.CutPrefix(remoteRef, "heads/"); ok {
		return "branch " + name
	}
	if name, ok := strings.CutPrefix(remoteRef, "tags/"); ok {
		return "tag " + name
	}
	return remoteRef
}
