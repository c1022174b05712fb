package main

import (
	"fmt"
	"io"
	"os"

	"github.com/odvcencio/twig/pkg/object"
	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newHashObjectCmd() *cobra.Command {
	var write bool
	var typeName string

	cmd := &cobra.Command{
		Use:   "hash-object [file]",
		Short: "Compute an object hash, optionally writing it to the store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			objType, err := parseObjectType(typeName)
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}

			if !write {
				fmt.Fprintln(cmd.OutOrStdout(), object.HashObject(objType, data))
				return nil
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			h, err := r.Store.Write(objType, data)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the object into the store")
	cmd.Flags().StringVarP(&typeName, "type", "t", "blob", "object type (blob, tree, commit)")
	return cmd
}

func parseObjectType(name string) (object.ObjectType, error) {
	switch t := object.ObjectType(name); t {
	case object.TypeBlob, object.TypeTree, object.TypeCommit:
		return t, nil
	default:
		return "", fmt.Errorf("unknown object type %q", name)
	}
}
