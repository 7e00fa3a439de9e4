// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/betterauth/betterauth/pkg/adapter"
	"github.com/betterauth/betterauth/pkg/core"
)

// ---------------------------------------------------------------------------
// Device authorization grant

// CreateDeviceCode inserts a pending device authorization.
func (s *Store) CreateDeviceCode(ctx context.Context, dc *core.DeviceCode) (*core.DeviceCode, error) {
	if dc.ID == "" {
		dc.ID = newID()
	}
	if dc.CreatedAt.IsZero() {
		dc.CreatedAt = time.Now().UTC()
	}
	if dc.Status == "" {
		dc.Status = core.StatusPending
	}

	row, err := s.db.Create(ctx, core.ModelDeviceCode, dc.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating device code: %w", err)
	}
	return core.DeviceCodeFromRow(row), nil
}

// FindDeviceCode returns the row for a device_code value, or (nil, nil).
func (s *Store) FindDeviceCode(ctx context.Context, deviceCode string) (*core.DeviceCode, error) {
	row, err := s.db.FindOne(ctx, core.ModelDeviceCode, []adapter.Where{adapter.Eq("deviceCode", deviceCode)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding device code: %w", err)
	}
	return core.DeviceCodeFromRow(row), nil
}

// FindDeviceCodeByUserCode returns the row for a user_code value, or
// (nil, nil).
func (s *Store) FindDeviceCodeByUserCode(ctx context.Context, userCode string) (*core.DeviceCode, error) {
	row, err := s.db.FindOne(ctx, core.ModelDeviceCode, []adapter.Where{adapter.Eq("userCode", userCode)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding device code by user code: %w", err)
	}
	return core.DeviceCodeFromRow(row), nil
}

// UpdateDeviceCode applies a partial update keyed by row id.
func (s *Store) UpdateDeviceCode(ctx context.Context, id string, update map[string]any) (*core.DeviceCode, error) {
	row, err := s.db.Update(ctx, core.ModelDeviceCode, []adapter.Where{adapter.Eq("id", id)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating device code: %w", err)
	}
	return core.DeviceCodeFromRow(row), nil
}

// DeleteDeviceCode removes a device authorization by row id. Terminal
// statuses are deleted on the poll that reports them.
func (s *Store) DeleteDeviceCode(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, core.ModelDeviceCode, []adapter.Where{adapter.Eq("id", id)}); err != nil {
		return fmt.Errorf("store: deleting device code: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// CIBA

// CreateCibaRequest inserts a pending backchannel authentication request.
func (s *Store) CreateCibaRequest(ctx context.Context, req *core.CibaRequest) (*core.CibaRequest, error) {
	if req.ID == "" {
		req.ID = newID()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.Status == "" {
		req.Status = core.StatusPending
	}

	row, err := s.db.Create(ctx, core.ModelCibaRequest, req.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating ciba request: %w", err)
	}
	return core.CibaRequestFromRow(row), nil
}

// FindCibaRequest returns the row for an auth_req_id, or (nil, nil).
func (s *Store) FindCibaRequest(ctx context.Context, authReqID string) (*core.CibaRequest, error) {
	row, err := s.db.FindOne(ctx, core.ModelCibaRequest, []adapter.Where{adapter.Eq("authReqId", authReqID)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding ciba request: %w", err)
	}
	return core.CibaRequestFromRow(row), nil
}

// UpdateCibaRequest applies a partial update keyed by row id.
func (s *Store) UpdateCibaRequest(ctx context.Context, id string, update map[string]any) (*core.CibaRequest, error) {
	row, err := s.db.Update(ctx, core.ModelCibaRequest, []adapter.Where{adapter.Eq("id", id)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating ciba request: %w", err)
	}
	return core.CibaRequestFromRow(row), nil
}

// DeleteCibaRequest removes a backchannel request by row id.
func (s *Store) DeleteCibaRequest(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, core.ModelCibaRequest, []adapter.Where{adapter.Eq("id", id)}); err != nil {
		return fmt.Errorf("store: deleting ciba request: %w", err)
	}
	return nil
}

// DeleteExpiredGrantRequests sweeps expired device codes and CIBA requests.
func (s *Store) DeleteExpiredGrantRequests(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	total := 0
	for _, model := range []string{core.ModelDeviceCode, core.ModelCibaRequest} {
		n, err := s.db.DeleteMany(ctx, model, []adapter.Where{
			{Field: "expiresAt", Operator: adapter.OpLT, Value: now},
		})
		if err != nil {
			return total, fmt.Errorf("store: sweeping %s: %w", model, err)
		}
		total += n
	}
	return total, nil
}

// ---------------------------------------------------------------------------
// Signing keys

// CreateJwk inserts a signing key. PrivateKey must already be encrypted by
// the caller.
func (s *Store) CreateJwk(ctx context.Context, key *core.Jwk) (*core.Jwk, error) {
	if key.ID == "" {
		key.ID = newID()
	}
	if key.CreatedAt.IsZero() {
		key.CreatedAt = time.Now().UTC()
	}

	row, err := s.db.Create(ctx, core.ModelJwks, key.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating jwk: %w", err)
	}
	return core.JwkFromRow(row), nil
}

// ListJwks returns all signing keys, newest first. The first key signs; the
// rest verify.
func (s *Store) ListJwks(ctx context.Context) ([]*core.Jwk, error) {
	rows, err := s.db.FindMany(ctx, core.ModelJwks, adapter.Query{
		SortBy: &adapter.SortBy{Field: "createdAt", Direction: adapter.SortDesc},
	})
	if err != nil {
		return nil, fmt.Errorf("store: listing jwks: %w", err)
	}
	keys := make([]*core.Jwk, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, core.JwkFromRow(row))
	}
	return keys, nil
}
