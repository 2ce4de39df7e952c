// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorkeep Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/doorkeep/doorkeep/internal/auth"
)

// NewHashCmd creates the hash subcommand.
func NewHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash <password>",
		Short: "Print the argon2id digest of a password",
		Long: `Hash a password with the same argon2id parameters the server uses.
Useful for seeding accounts or verifying stored digests by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: runHash,
	}
}

func runHash(cmd *cobra.Command, args []string) error {
	digest, err := auth.NewArgon2idHasher().Hash(args[0])
	if err != nil {
		return err
	}

	cmd.Println(digest)
	return nil
}
