package organizationsrv

import (
	"context"

	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/access"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/organization"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
)

// GenerateTFA stores a fresh secret for the caller and returns it with its
// provisioning URI. TFA stays off until EnableTFA sees a valid code.
func (s *Service) GenerateTFA(ctx context.Context, caller user.UserData) (credential.TfaEnrollment, error) {
	enrollment, err := credential.NewTfaSecret(s.tfaIssuer, caller.Email())
	if err != nil {
		return credential.TfaEnrollment{}, err
	}
	_, err = s.users.Update(ctx, caller.ID(), func(ud user.UserData) (user.UserData, error) {
		if ud.User.TfaEnabled {
			return ud, organization.ErrInvalidInput("TFA is already enabled")
		}
		ud.User.TfaSecret = enrollment.Secret
		return ud, nil
	}, caller.Email())
	if err != nil {
		return credential.TfaEnrollment{}, err
	}
	return enrollment, nil
}

// EnableTFA turns TFA on once code matches the generated secret
func (s *Service) EnableTFA(ctx context.Context, caller user.UserData, code string) (user.UserData, error) {
	now := s.now()
	return s.users.Update(ctx, caller.ID(), func(ud user.UserData) (user.UserData, error) {
		if ud.User.TfaSecret == "" {
			return ud, organization.ErrInvalidInput("generate a TFA secret first")
		}
		if !credential.VerifyTfaCode(ud.User.TfaSecret, code, now) {
			return ud, iam.ErrWrongTfaCode()
		}
		ud.User.TfaEnabled = true
		return ud, nil
	}, caller.Email())
}

// DisableTFA turns TFA off for email. Users need a current code; system
// admins can reset anyone.
func (s *Service) DisableTFA(ctx context.Context, caller user.UserData, email, code string) (user.UserData, error) {
	self := user.NormalizeEmail(email) == caller.Email()
	if !self && !access.IsSystemAdmin(caller) {
		return user.UserData{}, iam.ErrAccessDenied()
	}
	target, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return user.UserData{}, err
	}

	now := s.now()
	return s.users.Update(ctx, target.ID(), func(ud user.UserData) (user.UserData, error) {
		if self && ud.User.TfaEnabled && !credential.VerifyTfaCode(ud.User.TfaSecret, code, now) {
			return ud, iam.ErrWrongTfaCode()
		}
		ud.User.TfaEnabled = false
		ud.User.TfaSecret = ""
		return ud, nil
	}, caller.Email())
}
