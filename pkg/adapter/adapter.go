// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package adapter defines the storage capability surface. Every database
// interaction in the engine goes through the Adapter interface; concrete
// implementations live in the memory, sqlite and redis subpackages, and host
// applications may bring their own.
package adapter

import (
	"context"
	"time"
)

// Where operators. An empty operator means OpEQ.
const (
	OpEQ         = "eq"
	OpNE         = "ne"
	OpLT         = "lt"
	OpLTE        = "lte"
	OpGT         = "gt"
	OpGTE        = "gte"
	OpContains   = "contains"
	OpStartsWith = "starts_with"
	OpEndsWith   = "ends_with"
	OpIn         = "in"
)

// Where connectors. An empty connector means AND.
const (
	ConnectorAnd = "AND"
	ConnectorOr  = "OR"
)

// Where is a single predicate of a where clause. Entries combine with AND
// unless Connector is "OR": all AND entries must match, and at least one OR
// entry when any are present.
type Where struct {
	Field     string
	Operator  string
	Value     any
	Connector string
}

// Eq is shorthand for an equality predicate.
func Eq(field string, value any) Where {
	return Where{Field: field, Value: value}
}

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// SortBy orders a FindMany result.
type SortBy struct {
	Field     string
	Direction string
}

// Query collects the optional arguments of FindMany.
type Query struct {
	Where  []Where
	SortBy *SortBy
	Limit  int
	Offset int
}

// Adapter is the only database-facing interface. Rows cross the boundary as
// map[string]any with camelCase keys; the core package normalizes values on
// read. FindOne and Update return (nil, nil) when no row matches; Delete is
// idempotent.
type Adapter interface {
	Create(ctx context.Context, model string, data map[string]any, selectFields []string) (map[string]any, error)
	FindOne(ctx context.Context, model string, where []Where, selectFields []string) (map[string]any, error)
	FindMany(ctx context.Context, model string, q Query) ([]map[string]any, error)
	Update(ctx context.Context, model string, where []Where, update map[string]any) (map[string]any, error)
	UpdateMany(ctx context.Context, model string, where []Where, update map[string]any) (int, error)
	Delete(ctx context.Context, model string, where []Where) error
	DeleteMany(ctx context.Context, model string, where []Where) (int, error)
	Count(ctx context.Context, model string, where []Where) (int, error)
}

// Transactional is implemented by adapters that support transactions. The
// callback receives an Adapter scoped to the transaction.
type Transactional interface {
	Transaction(ctx context.Context, fn func(tx Adapter) error) error
}

// RunInTransaction executes fn inside a transaction when the adapter supports
// one, and sequentially against the adapter otherwise.
func RunInTransaction(ctx context.Context, a Adapter, fn func(Adapter) error) error {
	if tx, ok := a.(Transactional); ok {
		return tx.Transaction(ctx, fn)
	}
	return fn(a)
}

// SecondaryStorage is an optional TTL key-value store used for session
// caching and rate-limit counters. Get returns ("", nil) for a missing or
// expired key.
type SecondaryStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
