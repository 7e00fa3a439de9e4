// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package twofactor

import (
	"github.com/betterauth/betterauth/pkg/auth"
)

// sendOTP emails a one-time code to the user pending verification. Issuing
// again invalidates the previous code.
func (p *Plugin) sendOTP(r *auth.Request) (any, error) {
	user, err := p.pendingUser(r)
	if err != nil {
		return nil, err
	}
	code, err := p.codes.Issue(r.Context(), otpPurpose, user.Email)
	if err != nil {
		return nil, err
	}
	if err := p.opts.OTP.SendOTP(r.Context(), user, code); err != nil {
		return nil, err
	}
	return nil, nil
}

// verifyOTP completes a pending sign-in with an emailed code.
func (p *Plugin) verifyOTP(r *auth.Request) (any, error) {
	req, err := auth.Bind[verifyRequest](r)
	if err != nil {
		return nil, err
	}
	user, err := p.pendingUser(r)
	if err != nil {
		return nil, err
	}
	ok, err := p.codes.Verify(r.Context(), otpPurpose, user.Email, req.Code)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, auth.ErrUnauthorized(CodeInvalidCode, "Invalid code")
	}
	return p.finish(r, user, req.TrustDevice)
}
