// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package adapter

import "errors"

// Sentinel errors shared by adapter implementations.
var (
	// ErrDuplicateKey is returned by Create when a unique constraint is
	// violated (duplicate id, email, token).
	ErrDuplicateKey = errors.New("adapter: duplicate key")

	// ErrUnknownModel is returned when a model name has no table. Only
	// schema-bound adapters (sqlite) can detect this.
	ErrUnknownModel = errors.New("adapter: unknown model")
)
