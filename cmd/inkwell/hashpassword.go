// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/inkwell/inkwell/internal/auth"
)

// NewHashPasswordCmd creates the hash-password subcommand.
func NewHashPasswordCmd() *cobra.Command {
	params := auth.DefaultArgon2Params()

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read a password from the first line of stdin and print its argon2id
hash. Useful for seeding accounts directly in the database.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				return oops.Code("PASSWORD_READ_FAILED").Wrap(err)
			}
			password := strings.TrimRight(line, "\r\n")
			if err := auth.ValidatePassword(password); err != nil {
				return err
			}

			hasher, err := auth.NewArgon2idHasherWithParams(params)
			if err != nil {
				return err
			}
			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}

	cmd.Flags().Uint32Var(&params.Time, "time", params.Time, "argon2id iterations")
	cmd.Flags().Uint32Var(&params.Memory, "memory", params.Memory, "argon2id memory in KiB")
	cmd.Flags().Uint8Var(&params.Threads, "threads", params.Threads, "argon2id parallelism")
	return cmd
}
