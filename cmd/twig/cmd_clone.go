package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/remote"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newCloneCmd() *cobra.Command {
	var remoteName string
	var branch string

	cmd := &cobra.Command{
		Use:   "clone <remote> [directory]",
		Short: "Clone a repository from a twig endpoint or local path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := args[0]
			spec, err := canonicalRemoteSpec(source)
			if err != nil {
				return err
			}

			dest := ""
			if len(args) == 2 {
				dest = args[1]
			} else if looksLikeRemoteURL(spec) {
				ep, err := remote.ParseEndpoint(spec)
				if err != nil {
					return err
				}
				dest = ep.Repo
			} else {
				src, err := repo.Open(spec)
				if err != nil {
					return err
				}
				dest = filepath.Base(src.RootDir)
			}
			if strings.TrimSpace(dest) == "" {
				return fmt.Errorf("destination directory is required")
			}
			absDest, err := filepath.Abs(dest)
			if err != nil {
				return fmt.Errorf("resolve destination: %w", err)
			}
			if err := ensureEmptyDir(absDest); err != nil {
				return err
			}

			transport, err := openTransportForSpec(spec)
			if err != nil {
				return err
			}
			r, err := repo.Init(absDest)
			if err != nil {
				return err
			}
			if err := r.SetRemote(remoteName, spec); err != nil {
				return err
			}

			remoteRefs, err := transport.ListRefs(cmd.Context())
			if err != nil {
				return err
			}

			// Fetch all advertised refs so clone has complete object coverage.
			wants := make([]object.Hash, 0, len(remoteRefs))
			for _, h := range remoteRefs {
				if strings.TrimSpace(string(h)) != "" {
					wants = append(wants, h)
				}
			}
			if len(wants) > 0 {
				if _, err := remote.FetchIntoStore(cmd.Context(), transport, r.Store, wants, nil); err != nil {
					return err
				}
			}

			for name, h := range remoteRefs {
				if err := r.UpdateRef(remoteTrackingRefName(remoteName, name), h); err != nil {
					return err
				}
			}

			if len(remoteRefs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "cloned empty repository into %s\n", absDest)
				return nil
			}

			selectedBranch := strings.TrimSpace(branch)
			var selectedHash object.Hash
			if selectedBranch == "" {
				var ok bool
				selectedBranch, selectedHash, ok = chooseDefaultBranch(remoteRefs)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "cloned repository into %s (no branch heads found)\n", absDest)
					return nil
				}
			} else {
				h, ok := remoteRefs["heads/"+selectedBranch]
				if !ok || strings.TrimSpace(string(h)) == "" {
					return fmt.Errorf("remote branch %q not found", selectedBranch)
				}
				selectedHash = h
			}

			// First checkout by commit hash while HEAD still points to an
			// unborn branch, so clean-tree checks do not fail on initial clone.
			if err := r.Checkout(string(selectedHash)); err != nil {
				return err
			}
			if err := r.UpdateRef("refs/heads/"+selectedBranch, selectedHash); err != nil {
				return err
			}
			if err := writeSymbolicHead(r, selectedBranch); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cloned %s into %s\n", source, absDest)
			return nil
		},
	}

	cmd.Flags().StringVar(&remoteName, "remote-name", "origin", "name to assign to the cloned remote")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "branch to checkout after clone")
	return cmd
}
