// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"
)

// secretBytes is the entropy of a generated secret. 32 bytes covers the
// HMAC-SHA256 key size used for cookie signing.
const secretBytes = 32

func newSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "secret",
		Short: "Generate a server secret",
		Long: `Generate a fresh random secret suitable for --secret or BETTER_AUTH_SECRET.

The secret signs cookies, derives encryption keys, and peppers password
hashes; rotating it invalidates outstanding cookies unless the old value is
kept in BETTER_AUTH_SECRETS.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			buf := make([]byte, secretBytes)
			if _, err := rand.Read(buf); err != nil {
				return fmt.Errorf("gathering entropy: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), base64.RawURLEncoding.EncodeToString(buf))
			return nil
		},
	}
}
