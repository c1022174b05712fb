package main

import (
	"fmt"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newReadTreeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-tree <tree-ish>",
		Short: "Replace the staged index with a tree's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			h, err := r.ResolveRevision(args[0])
			if err != nil {
				return err
			}

			objType, _, err := r.Store.Read(h)
			if err != nil {
				return err
			}
			treeHash := h
			switch objType {
			case object.TypeCommit:
				c, err := r.Store.ReadCommit(h)
				if err != nil {
					return err
				}
				treeHash = c.TreeHash
			case object.TypeTree:
			default:
				return fmt.Errorf("object %s is a %s, not a tree or commit", h, objType)
			}

			return r.ReadTreeIntoIndex(treeHash)
		},
	}
}
