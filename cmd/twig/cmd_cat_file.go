package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newCatFileCmd() *cobra.Command {
	var showType bool
	var showSize bool
	var pretty bool

	cmd := &cobra.Command{
		Use:   "cat-file <object>",
		Short: "Show type, size, or content of a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selected := 0
			for _, f := range []bool{showType, showSize, pretty} {
				if f {
					selected++
				}
			}
			if selected != 1 {
				return fmt.Errorf("exactly one of -t, -s, -p is required")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			h, err := r.ResolveRevision(args[0])
			if err != nil {
				return err
			}
			objType, data, err := r.Store.Read(h)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case showType:
				fmt.Fprintln(out, objType)
			case showSize:
				fmt.Fprintln(out, len(data))
			default:
				// Payloads are canonical text for trees and commits, raw
				// bytes for blobs; print them as stored.
				if _, err := out.Write(data); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&showType, "type", "t", false, "print the object type")
	cmd.Flags().BoolVarP(&showSize, "size", "s", false, "print the payload size in bytes")
	cmd.Flags().BoolVarP(&pretty, "print", "p", false, "print the payload")
	return cmd
}
