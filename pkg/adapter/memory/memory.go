// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory implements the storage adapter with in-memory maps. It is
// thread-safe and suitable for development and testing; production
// deployments should use the sqlite adapter or bring their own.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/betterauth/betterauth/pkg/adapter"
)

// Memory is the in-memory Adapter. Rows are stored as copies in insertion
// order per model; reads return defensive copies so callers can never alias
// internal state.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
}

// New creates an empty in-memory adapter.
func New() *Memory {
	return &Memory{tables: make(map[string][]map[string]any)}
}

// Create inserts a row, generating an id when the caller did not provide one.
func (m *Memory) Create(_ context.Context, model string, data map[string]any, selectFields []string) (map[string]any, error) {
	row := copyRow(data)
	if cast.ToString(row["id"]) == "" {
		row["id"] = uuid.NewString()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.tables[model] {
		if existing["id"] == row["id"] {
			return nil, adapter.ErrDuplicateKey
		}
	}

	m.tables[model] = append(m.tables[model], row)
	return applySelect(copyRow(row), selectFields), nil
}

// FindOne returns the first matching row in insertion order, or (nil, nil).
func (m *Memory) FindOne(_ context.Context, model string, where []adapter.Where, selectFields []string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.tables[model] {
		if matchWhere(row, where) {
			return applySelect(copyRow(row), selectFields), nil
		}
	}
	return nil, nil
}

// FindMany returns all matching rows, sorted and paginated per the query.
func (m *Memory) FindMany(_ context.Context, model string, q adapter.Query) ([]map[string]any, error) {
	m.mu.RLock()

	var matched []map[string]any
	for _, row := range m.tables[model] {
		if matchWhere(row, q.Where) {
			matched = append(matched, copyRow(row))
		}
	}
	m.mu.RUnlock()

	if q.SortBy != nil {
		field, desc := q.SortBy.Field, q.SortBy.Direction == adapter.SortDesc
		sort.SliceStable(matched, func(i, j int) bool {
			c, ok := compareValues(matched[i][field], matched[j][field])
			if !ok {
				return false
			}
			if desc {
				return c > 0
			}
			return c < 0
		})
	}

	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, nil
}

// Update mutates the first matching row and returns a copy, or (nil, nil)
// when nothing matched.
func (m *Memory) Update(_ context.Context, model string, where []adapter.Where, update map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.tables[model] {
		if matchWhere(row, where) {
			for k, v := range update {
				row[k] = v
			}
			return copyRow(row), nil
		}
	}
	return nil, nil
}

// UpdateMany mutates every matching row and returns the count.
func (m *Memory) UpdateMany(_ context.Context, model string, where []adapter.Where, update map[string]any) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, row := range m.tables[model] {
		if matchWhere(row, where) {
			for k, v := range update {
				row[k] = v
			}
			count++
		}
	}
	return count, nil
}

// Delete removes the first matching row. Deleting a missing row is a no-op.
func (m *Memory) Delete(_ context.Context, model string, where []adapter.Where) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[model]
	for i, row := range rows {
		if matchWhere(row, where) {
			m.tables[model] = append(rows[:i:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// DeleteMany removes every matching row and returns the count.
func (m *Memory) DeleteMany(_ context.Context, model string, where []adapter.Where) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[model]
	kept := rows[:0:0]
	count := 0
	for _, row := range rows {
		if matchWhere(row, where) {
			count++
			continue
		}
		kept = append(kept, row)
	}
	m.tables[model] = kept
	return count, nil
}

// Count returns the number of matching rows.
func (m *Memory) Count(_ context.Context, model string, where []adapter.Where) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, row := range m.tables[model] {
		if matchWhere(row, where) {
			count++
		}
	}
	return count, nil
}

// matchWhere evaluates a where clause against a row: every AND predicate
// must match, and at least one OR predicate when any are present.
func matchWhere(row map[string]any, where []adapter.Where) bool {
	if len(where) == 0 {
		return true
	}
	hasOr, orMatched := false, false
	for _, w := range where {
		matched := matchPredicate(row, w)
		if w.Connector == adapter.ConnectorOr {
			hasOr = true
			if matched {
				orMatched = true
			}
			continue
		}
		if !matched {
			return false
		}
	}
	return !hasOr || orMatched
}

func matchPredicate(row map[string]any, w adapter.Where) bool {
	value := row[w.Field]

	switch w.Operator {
	case "", adapter.OpEQ:
		return valuesEqual(value, w.Value)
	case adapter.OpNE:
		return !valuesEqual(value, w.Value)
	case adapter.OpLT, adapter.OpLTE, adapter.OpGT, adapter.OpGTE:
		c, ok := compareValues(value, w.Value)
		if !ok {
			return false
		}
		switch w.Operator {
		case adapter.OpLT:
			return c < 0
		case adapter.OpLTE:
			return c <= 0
		case adapter.OpGT:
			return c > 0
		default:
			return c >= 0
		}
	case adapter.OpContains:
		return strings.Contains(cast.ToString(value), cast.ToString(w.Value))
	case adapter.OpStartsWith:
		return strings.HasPrefix(cast.ToString(value), cast.ToString(w.Value))
	case adapter.OpEndsWith:
		return strings.HasSuffix(cast.ToString(value), cast.ToString(w.Value))
	case adapter.OpIn:
		for _, candidate := range toSlice(w.Value) {
			if valuesEqual(value, candidate) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if c, ok := compareValues(a, b); ok {
		return c == 0
	}
	return false
}

// compareValues orders two values, normalizing times and numbers first and
// falling back to string comparison. The bool is false when either value is
// nil or no common representation exists.
func compareValues(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}

	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if _, bok := toTime(b); bok {
		return 0, false
	}

	if isNumeric(a) || isNumeric(b) {
		af, err1 := cast.ToFloat64E(a)
		bf, err2 := cast.ToFloat64E(b)
		if err1 == nil && err2 == nil {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	as, err1 := cast.ToStringE(a)
	bs, err2 := cast.ToStringE(b)
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return strings.Compare(as, bs), true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	default:
		return time.Time{}, false
	}
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func toSlice(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		out := make([]any, len(vals))
		for i, s := range vals {
			out[i] = s
		}
		return out
	default:
		return nil
	}
}

// copyRow clones a row one level deep, including slice and nested map values.
func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		case map[string]any:
			nested := make(map[string]any, len(val))
			for nk, nv := range val {
				nested[nk] = nv
			}
			out[k] = nested
		default:
			out[k] = v
		}
	}
	return out
}

func applySelect(row map[string]any, selectFields []string) map[string]any {
	if len(selectFields) == 0 {
		return row
	}
	out := make(map[string]any, len(selectFields))
	for _, f := range selectFields {
		if v, ok := row[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Compile-time interface compliance check
var _ adapter.Adapter = (*Memory)(nil)
