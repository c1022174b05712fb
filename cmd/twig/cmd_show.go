package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/twig/pkg/diff"
	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [revision]",
		Short: "Show commit metadata and changed files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			target := "HEAD"
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				target = strings.TrimSpace(args[0])
			}

			h, err := r.ResolveRevision(target)
			if err != nil {
				return err
			}
			commit, err := r.Store.ReadCommit(h)
			if err != nil {
				return fmt.Errorf("show: read commit %s: %w", h, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "commit %s\n", h)
			fmt.Fprintf(out, "Author: %s\n", commit.Author)
			fmt.Fprintf(out, "Date:   %s\n", time.Unix(commit.Timestamp, 0).Format("2006-01-02 15:04:05"))
			if commit.Signature != "" {
				fingerprint, err := verifyCommitSignature(commit)
				if err != nil {
					fmt.Fprintf(out, "Signature: INVALID (%v)\n", err)
				} else {
					fmt.Fprintf(out, "Signature: good (%s)\n", fingerprint)
				}
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "    %s\n", commit.Message)
			fmt.Fprintln(out)

			before := make(map[string]object.Hash)
			if len(commit.Parents) > 0 {
				parent, err := r.Store.ReadCommit(commit.Parents[0])
				if err == nil {
					if m, flattenErr := r.FlattenTreeMap(parent.TreeHash); flattenErr == nil {
						before = m
					}
				}
			}

			after, err := r.FlattenTreeMap(commit.TreeHash)
			if err != nil {
				return fmt.Errorf("show: flatten tree: %w", err)
			}

			changes := diff.TreeChanges(before, after)
			if len(changes) == 0 {
				return nil
			}

			fmt.Fprintln(out, "Changes:")
			for _, c := range changes {
				marker := "M"
				switch c.Action {
				case diff.Added:
					marker = "A"
				case diff.Deleted:
					marker = "D"
				}
				fmt.Fprintf(out, "  %s %s\n", marker, c.Path)
			}
			return nil
		},
	}
}
