// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package app wires the betterauth command-line application.
package app

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the betterauth CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "betterauth",
		DisableAutoGenTag: true,
		Short:             "Self-contained authentication and authorization server",
		Long: `betterauth runs the authentication server as a standalone process: email and
password sign-in, sessions, two-factor authentication, administration, and a
full OAuth 2.1 / OpenID Connect provider, backed by SQLite.

Most deployments embed the library in their own service instead; this binary
is the quickest way to try the endpoints or to run small installations.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSecretCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}
