package main

import (
	"fmt"
	"io"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newMergeCmd() *cobra.Command {
	var abort bool

	cmd := &cobra.Command{
		Use:   "merge <revision>",
		Short: "Merge another branch or revision into the current branch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			if abort {
				if len(args) > 0 {
					return fmt.Errorf("merge --abort does not accept positional args")
				}
				if err := r.AbortMerge(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "merge aborted")
				return nil
			}

			if len(args) != 1 {
				return fmt.Errorf("merge requires a revision to merge")
			}
			target := args[0]

			current, err := r.CurrentBranch()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "merging %s into %s...\n", target, current)

			report, err := r.Merge(target)
			if err != nil {
				return err
			}

			if report.AlreadyUpToDate {
				fmt.Fprintln(out, "already up to date")
				return nil
			}
			if report.FastForward {
				fmt.Fprintf(out, "fast-forward to %s\n", shortHash(report.MergeCommit))
				return nil
			}

			for _, f := range report.Files {
				printFileReport(out, f)
			}

			if report.HasConflicts {
				fmt.Fprintf(out, "merge completed with %d conflict", report.TotalConflicts)
				if report.TotalConflicts != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "fix conflicts and run twig commit")
			} else {
				fmt.Fprintln(out, "merge completed cleanly")
				fmt.Fprintf(out, "[%s %s] Merge '%s'\n", current, shortHash(report.MergeCommit), target)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&abort, "abort", false, "abort the in-progress merge and restore HEAD")

	return cmd
}

func printFileReport(out io.Writer, f repo.FileMergeReport) {
	switch f.Status {
	case "conflict":
		fmt.Fprintf(out, "  %s: CONFLICT (%d conflict", f.Path, f.ConflictCount)
		if f.ConflictCount != 1 {
			fmt.Fprint(out, "s")
		}
		fmt.Fprintln(out, ")")
	case "added":
		fmt.Fprintf(out, "  %s: added\n", f.Path)
	case "deleted":
		fmt.Fprintf(out, "  %s: deleted\n", f.Path)
	default: // "clean"
		fmt.Fprintf(out, "  %s: clean\n", f.Path)
	}
}
