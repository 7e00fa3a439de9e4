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
// Two-factor

// CreateTwoFactor inserts a user's TOTP record. Secret and BackupCodes must
// already be encrypted by the caller, which owns the key.
func (s *Store) CreateTwoFactor(ctx context.Context, tf *core.TwoFactor) (*core.TwoFactor, error) {
	if tf.ID == "" {
		tf.ID = newID()
	}
	row, err := s.db.Create(ctx, core.ModelTwoFactor, tf.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating two-factor record: %w", err)
	}
	return core.TwoFactorFromRow(row), nil
}

// FindTwoFactor returns a user's TOTP record, or (nil, nil).
func (s *Store) FindTwoFactor(ctx context.Context, userID string) (*core.TwoFactor, error) {
	row, err := s.db.FindOne(ctx, core.ModelTwoFactor, []adapter.Where{adapter.Eq("userId", userID)}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding two-factor record: %w", err)
	}
	return core.TwoFactorFromRow(row), nil
}

// UpdateTwoFactor applies a partial update keyed by userId.
func (s *Store) UpdateTwoFactor(ctx context.Context, userID string, update map[string]any) (*core.TwoFactor, error) {
	row, err := s.db.Update(ctx, core.ModelTwoFactor, []adapter.Where{adapter.Eq("userId", userID)}, update)
	if err != nil {
		return nil, fmt.Errorf("store: updating two-factor record: %w", err)
	}
	return core.TwoFactorFromRow(row), nil
}

// DeleteTwoFactor removes a user's TOTP record.
func (s *Store) DeleteTwoFactor(ctx context.Context, userID string) error {
	if err := s.db.Delete(ctx, core.ModelTwoFactor, []adapter.Where{adapter.Eq("userId", userID)}); err != nil {
		return fmt.Errorf("store: deleting two-factor record: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Trusted devices

// CreateTrustedDevice inserts a trusted-device row.
func (s *Store) CreateTrustedDevice(ctx context.Context, device *core.TrustedDevice) (*core.TrustedDevice, error) {
	if device.ID == "" {
		device.ID = newID()
	}
	if device.CreatedAt.IsZero() {
		device.CreatedAt = time.Now().UTC()
	}

	row, err := s.db.Create(ctx, core.ModelTrustedDevice, device.Row(), nil)
	if err != nil {
		return nil, fmt.Errorf("store: creating trusted device: %w", err)
	}
	return core.TrustedDeviceFromRow(row), nil
}

// FindTrustedDevice returns the unexpired row for (deviceId, userId), or
// (nil, nil).
func (s *Store) FindTrustedDevice(ctx context.Context, deviceID, userID string) (*core.TrustedDevice, error) {
	row, err := s.db.FindOne(ctx, core.ModelTrustedDevice, []adapter.Where{
		adapter.Eq("deviceId", deviceID),
		adapter.Eq("userId", userID),
		{Field: "expiresAt", Operator: adapter.OpGT, Value: time.Now().UTC()},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("store: finding trusted device: %w", err)
	}
	return core.TrustedDeviceFromRow(row), nil
}

// RollTrustedDevice slides a device's expiry forward.
func (s *Store) RollTrustedDevice(ctx context.Context, id string, expiresAt time.Time) error {
	if _, err := s.db.Update(ctx, core.ModelTrustedDevice, []adapter.Where{adapter.Eq("id", id)}, map[string]any{
		"expiresAt": expiresAt,
	}); err != nil {
		return fmt.Errorf("store: rolling trusted device: %w", err)
	}
	return nil
}

// DeleteTrustedDevices removes every trusted device of a user; called on 2FA
// disable and password change.
func (s *Store) DeleteTrustedDevices(ctx context.Context, userID string) error {
	if _, err := s.db.DeleteMany(ctx, core.ModelTrustedDevice, []adapter.Where{adapter.Eq("userId", userID)}); err != nil {
		return fmt.Errorf("store: deleting trusted devices: %w", err)
	}
	return nil
}
