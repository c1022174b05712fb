package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/twig/pkg/repo"
	"github.com/spf13/cobra"
)

func newCommitCmd() *cobra.Command {
	var message string
	var author string
	var sign bool
	var keyPath string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Record changes to the repository",
		RunE: func(cmd *cobra.Command, args []string) error {
			if message == "" {
				return fmt.Errorf("commit message is required (-m)")
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}

			if author == "" {
				author = strings.TrimSpace(cfg.User.Name)
			}
			if author == "" {
				author = os.Getenv("USER")
			}
			if author == "" {
				author = "unknown"
			}

			var signer repo.CommitSigner
			if sign {
				if keyPath == "" {
					keyPath = cfg.User.SigningKey
				}
				signer, _, err = newSSHCommitSigner(keyPath)
				if err != nil {
					return err
				}
			}

			h, err := r.CommitWithSigner(message, author, signer)
			if err != nil {
				return err
			}

			// Determine current branch name for output.
			branch := "HEAD"
			head, err := r.Head()
			if err == nil && strings.HasPrefix(head, "refs/heads/") {
				branch = strings.TrimPrefix(head, "refs/heads/")
			}

			fmt.Fprintf(cmd.OutOrStdout(), "[%s %s] %s\n", branch, shortHash(h), message)
			return nil
		},
	}

	cmd.Flags().StringVarP(&message, "message", "m", "", "commit message")
	cmd.Flags().StringVar(&author, "author", "", "override author (default: config user name, then $USER)")
	cmd.Flags().BoolVarP(&sign, "sign", "S", false, "sign the commit with an SSH key")
	cmd.Flags().StringVar(&keyPath, "key", "", "SSH private key for --sign (default: config signing_key, then ~/.ssh)")

	return cmd
}
