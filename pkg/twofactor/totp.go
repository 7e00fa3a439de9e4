// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package twofactor

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/betterauth/betterauth/pkg/auth"
	"github.com/betterauth/betterauth/pkg/core"
	"github.com/betterauth/betterauth/pkg/crypto"
)

type enableRequest struct {
	Password string `json:"password" validate:"required"`
}

// enable enrolls the signed-in user: it mints a TOTP secret and a batch of
// backup codes, both stored encrypted, and flips twoFactorEnabled. The
// response carries the otpauth URI for the authenticator app and the backup
// codes in clear; neither is recoverable later.
func (p *Plugin) enable(r *auth.Request) (any, error) {
	req, err := auth.Bind[enableRequest](r)
	if err != nil {
		return nil, err
	}
	user := r.Session().User
	if err := p.confirmPassword(r, user.ID, req.Password); err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.opts.Issuer,
		AccountName: user.Email,
		Period:      p.opts.Period,
		Digits:      p.totpDigits(),
	})
	if err != nil {
		return nil, fmt.Errorf("twofactor: generating totp key: %w", err)
	}
	encSecret, err := crypto.Encrypt(p.auth.Cookies.Secret(), key.Secret())
	if err != nil {
		return nil, err
	}
	codes, encCodes, err := p.newBackupCodes()
	if err != nil {
		return nil, err
	}

	existing, err := p.auth.Store.FindTwoFactor(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		_, err = p.auth.Store.UpdateTwoFactor(r.Context(), user.ID, map[string]any{
			"secret":      encSecret,
			"backupCodes": encCodes,
		})
	} else {
		_, err = p.auth.Store.CreateTwoFactor(r.Context(), &core.TwoFactor{
			UserID:      user.ID,
			Secret:      encSecret,
			BackupCodes: encCodes,
		})
	}
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateUser(r.Context(), user.ID, map[string]any{
		"twoFactorEnabled": true,
	}); err != nil {
		return nil, err
	}

	return map[string]any{
		"totpURI":     key.URL(),
		"backupCodes": codes,
	}, nil
}

// disable turns the factor off and forgets every trusted device.
func (p *Plugin) disable(r *auth.Request) (any, error) {
	req, err := auth.Bind[enableRequest](r)
	if err != nil {
		return nil, err
	}
	user := r.Session().User
	if err := p.confirmPassword(r, user.ID, req.Password); err != nil {
		return nil, err
	}

	if err := p.auth.Store.DeleteTwoFactor(r.Context(), user.ID); err != nil {
		return nil, err
	}
	if err := p.auth.Store.DeleteTrustedDevices(r.Context(), user.ID); err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateUser(r.Context(), user.ID, map[string]any{
		"twoFactorEnabled": false,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"status": true}, nil
}

// generateBackupCodes replaces the stored batch and returns the new codes.
func (p *Plugin) generateBackupCodes(r *auth.Request) (any, error) {
	req, err := auth.Bind[enableRequest](r)
	if err != nil {
		return nil, err
	}
	user := r.Session().User
	if err := p.confirmPassword(r, user.ID, req.Password); err != nil {
		return nil, err
	}

	tf, err := p.auth.Store.FindTwoFactor(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, auth.ErrBadRequest(CodeTwoFactorNotEnabled, "Two-factor authentication is not enabled")
	}
	codes, encCodes, err := p.newBackupCodes()
	if err != nil {
		return nil, err
	}
	if _, err := p.auth.Store.UpdateTwoFactor(r.Context(), user.ID, map[string]any{
		"backupCodes": encCodes,
	}); err != nil {
		return nil, err
	}
	return map[string]any{"backupCodes": codes}, nil
}

type verifyRequest struct {
	Code        string `json:"code" validate:"required"`
	TrustDevice bool   `json:"trustDevice"`
}

// verifyTOTP completes a pending sign-in with an authenticator code.
func (p *Plugin) verifyTOTP(r *auth.Request) (any, error) {
	req, err := auth.Bind[verifyRequest](r)
	if err != nil {
		return nil, err
	}
	user, err := p.pendingUser(r)
	if err != nil {
		return nil, err
	}
	tf, err := p.auth.Store.FindTwoFactor(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, auth.ErrBadRequest(CodeTwoFactorNotEnabled, "Two-factor authentication is not enabled")
	}
	secret, err := p.decryptAny(tf.Secret)
	if err != nil {
		return nil, err
	}

	valid, err := totp.ValidateCustom(req.Code, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    p.opts.Period,
		Skew:      1,
		Digits:    p.totpDigits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return nil, auth.ErrUnauthorized(CodeInvalidCode, "Invalid code")
	}
	return p.finish(r, user, req.TrustDevice)
}

// verifyBackupCode completes a pending sign-in by consuming a backup code.
func (p *Plugin) verifyBackupCode(r *auth.Request) (any, error) {
	req, err := auth.Bind[verifyRequest](r)
	if err != nil {
		return nil, err
	}
	user, err := p.pendingUser(r)
	if err != nil {
		return nil, err
	}
	tf, err := p.auth.Store.FindTwoFactor(r.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, auth.ErrBadRequest(CodeTwoFactorNotEnabled, "Two-factor authentication is not enabled")
	}

	ok, err := p.consumeBackupCode(r, tf, req.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrUnauthorized(CodeInvalidCode, "Invalid code")
	}
	return p.finish(r, user, req.TrustDevice)
}

// newBackupCodes mints a batch and returns it in clear alongside the
// encrypted JSON list for storage.
func (p *Plugin) newBackupCodes() ([]string, string, error) {
	codes := make([]string, backupCodeCount)
	for i := range codes {
		codes[i] = crypto.RandomString(backupCodeLength, crypto.AlphabetAlphanumeric)
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, "", err
	}
	enc, err := crypto.Encrypt(p.auth.Cookies.Secret(), string(raw))
	if err != nil {
		return nil, "", err
	}
	return codes, enc, nil
}

// consumeBackupCode removes the matching code from the stored list. Each
// code works exactly once.
func (p *Plugin) consumeBackupCode(r *auth.Request, tf *core.TwoFactor, code string) (bool, error) {
	raw, err := p.decryptAny(tf.BackupCodes)
	if err != nil {
		return false, err
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		return false, fmt.Errorf("twofactor: decoding backup codes: %w", err)
	}

	match := -1
	for i, c := range codes {
		if subtle.ConstantTimeCompare([]byte(c), []byte(code)) == 1 {
			match = i
		}
	}
	if match < 0 {
		return false, nil
	}

	remaining := append(codes[:match], codes[match+1:]...)
	rawLeft, err := json.Marshal(remaining)
	if err != nil {
		return false, err
	}
	enc, err := crypto.Encrypt(p.auth.Cookies.Secret(), string(rawLeft))
	if err != nil {
		return false, err
	}
	if _, err := p.auth.Store.UpdateTwoFactor(r.Context(), tf.UserID, map[string]any{
		"backupCodes": enc,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// confirmPassword re-checks the user's password before sensitive changes.
func (p *Plugin) confirmPassword(r *auth.Request, userID, password string) error {
	acct, err := p.auth.Store.FindUserAccount(r.Context(), userID, core.ProviderCredential)
	if err != nil {
		return err
	}
	if acct == nil || acct.Password == "" {
		return auth.ErrBadRequest(CodeCredentialNotFound, "No credential account found")
	}
	if !p.auth.Hasher.Verify(password, acct.Password) {
		return auth.ErrUnauthorized(CodeInvalidPassword, "Invalid password")
	}
	return nil
}

// decryptAny tries every configured secret so rotation does not orphan
// stored TOTP secrets and backup codes.
func (p *Plugin) decryptAny(ciphertext string) (string, error) {
	plain, err := crypto.DecryptAny(p.auth.Cookies.Secrets(), ciphertext)
	if err != nil {
		return "", fmt.Errorf("twofactor: decrypting stored value: %w", err)
	}
	return plain, nil
}

func (p *Plugin) totpDigits() otp.Digits {
	if p.opts.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
