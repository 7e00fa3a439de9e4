// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the betterauth CLI.
package main

import (
	"os"

	"github.com/betterauth/betterauth/cmd/betterauth/app"
	"github.com/betterauth/betterauth/pkg/logger"
)

func main() {
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
