package recovery

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/iam"
	"github.com/Abraxas-365/keystone/pkg/iam/credential"
	"github.com/Abraxas-365/keystone/pkg/iam/user"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/Abraxas-365/keystone/pkg/notifx"
	"github.com/google/uuid"
)

const DefaultTTL = 30 * time.Minute

var ErrRegistry = errx.NewRegistry("RECOVERY")

var (
	CodeInvalidToken = ErrRegistry.Register("INVALID_TOKEN", errx.TypeValidation, http.StatusBadRequest, "Recovery token is invalid or expired")
)

func ErrInvalidToken() *errx.Error { return ErrRegistry.New(CodeInvalidToken) }

// Store keeps single-use recovery tokens
type Store interface {
	// Save binds token to email for ttl.
	Save(ctx context.Context, token, email string, ttl time.Duration) error
	// Consume returns the email bound to token and forgets the token.
	// A missing or expired token returns ErrInvalidToken.
	Consume(ctx context.Context, token string) (string, error)
}

// Mailer delivers recovery links
type Mailer interface {
	SendPasswordRecovery(ctx context.Context, to string, data notifx.RecoveryEmail) error
}

// Service runs the password recovery flow
type Service struct {
	users    user.Repository
	store    Store
	mailer   Mailer
	verifier *credential.Verifier
	linkBase string
	ttl      time.Duration
}

// NewService creates a recovery service. Links are linkBase followed by the token.
func NewService(users user.Repository, store Store, mailer Mailer, verifier *credential.Verifier, linkBase string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		users:    users,
		store:    store,
		mailer:   mailer,
		verifier: verifier,
		linkBase: linkBase,
		ttl:      ttl,
	}
}

// RequestRecovery mails a recovery link to email. Unknown and banned
// addresses are ignored so callers cannot probe for accounts.
func (s *Service) RequestRecovery(ctx context.Context, email string) error {
	ud, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if iam.Is(err, iam.NotFound) {
			logx.WithContext(ctx).Debugf("recovery requested for unknown address")
			return nil
		}
		return err
	}
	if ud.User.Banned {
		return nil
	}

	token := uuid.NewString()
	if err := s.store.Save(ctx, token, ud.Email(), s.ttl); err != nil {
		return errx.Wrap(err, "failed to store recovery token", errx.TypeInternal)
	}

	return s.mailer.SendPasswordRecovery(ctx, ud.Email(), notifx.RecoveryEmail{
		Name:     ud.User.FullName(),
		Link:     s.linkBase + token,
		ValidFor: s.ttl,
	})
}

// ResetPassword sets a new password for the owner of token and
// invalidates every session issued before.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	hash, err := s.verifier.HashPassword(password)
	if err != nil {
		return err
	}

	email, err := s.store.Consume(ctx, token)
	if err != nil {
		return err
	}

	ud, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if iam.Is(err, iam.NotFound) {
			return ErrInvalidToken()
		}
		return err
	}

	_, err = s.users.Update(ctx, ud.ID(), func(ud user.UserData) (user.UserData, error) {
		ud.User.PasswordHash = hash
		ud.IncCounter()
		return ud, nil
	}, "recovery")
	if err != nil {
		return err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"user_id":     ud.ID(),
		"audit_event": "password_reset",
	}).Info("password reset through recovery")
	return nil
}
