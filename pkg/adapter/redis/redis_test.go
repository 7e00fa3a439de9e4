// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*Storage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	s, err := New(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestNew_PingFailure(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	assert.Error(t, err)
}

func TestNew_MissingAddr(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	t.Parallel()
	s, mr := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "session:abc", `{"user":"u1"}`, time.Minute))

	// Keys are namespaced under the prefix.
	assert.True(t, mr.Exists(DefaultKeyPrefix+"session:abc"))

	got, err := s.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, `{"user":"u1"}`, got)

	require.NoError(t, s.Delete(ctx, "session:abc"))
	got, err = s.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Empty(t, got)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, "session:abc"))
}

func TestGet_MissingKey(t *testing.T) {
	t.Parallel()
	s, _ := newTestStorage(t)

	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSet_TTL(t *testing.T) {
	t.Parallel()
	s, mr := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(DefaultKeyPrefix+"k"))

	// miniredis expires keys via FastForward rather than wall time.
	mr.FastForward(2 * time.Minute)
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSet_NoTTL(t *testing.T) {
	t.Parallel()
	s, mr := newTestStorage(t)

	require.NoError(t, s.Set(context.Background(), "pinned", "v", 0))
	assert.Zero(t, mr.TTL(DefaultKeyPrefix+"pinned"))
}

func TestCustomKeyPrefix(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)

	s, err := New(context.Background(), Config{Addr: mr.Addr(), KeyPrefix: "tenant-a:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	assert.True(t, mr.Exists("tenant-a:k"))
}
