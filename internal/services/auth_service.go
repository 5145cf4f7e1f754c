package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	stderrors "errors"

	"github.com/stellaide/server/internal/infrastructure/auth"
	"github.com/stellaide/server/internal/infrastructure/observability"
	"github.com/stellaide/server/internal/models"
	"github.com/stellaide/server/internal/repository"
	pkgerrors "github.com/stellaide/server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const defaultRole = "USER"

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	nicknamePattern = regexp.MustCompile(`^[a-zA-Z0-9가-힣]{2,16}$`)

	// Nicknames that would impersonate operators.
	forbiddenNicknames = map[string]struct{}{
		"admin":         {},
		"administrator": {},
		"root":          {},
		"system":        {},
		"stellaide":     {},
	}
)

// AuthService carries the account flows that sit above the session
// lifecycle: signup, password check, password change, account deletion.
type AuthService interface {
	Signup(ctx context.Context, email, password, nickname string) error
	CheckPassword(ctx context.Context, password, accessToken string) error
	ChangePassword(ctx context.Context, oldPassword, newPassword, accessToken string) error
	DeleteUser(ctx context.Context, refreshToken string) error
}

type authService struct {
	userRepo repository.UserRepository
	mail     MailService
	sessions SessionService
	tokens   *auth.Provider
}

func NewAuthService(
	userRepo repository.UserRepository,
	mail MailService,
	sessions SessionService,
	tokens *auth.Provider,
) *authService {
	return &authService{
		userRepo: userRepo,
		mail:     mail,
		sessions: sessions,
		tokens:   tokens,
	}
}

func (s *authService) Signup(ctx context.Context, email, password, nickname string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "Signup")
	defer span.End()

	if !emailPattern.MatchString(email) || password == "" || !nicknamePattern.MatchString(nickname) {
		span.SetStatus(codes.Error, "malformed signup input")
		return pkgerrors.ErrIncorrectFormat
	}
	if _, forbidden := forbiddenNicknames[nickname]; forbidden {
		span.SetStatus(codes.Error, "forbidden nickname")
		return pkgerrors.ErrForbiddenNickname
	}

	// Signup only proceeds for an email that passed code verification
	// inside the verification window.
	verified, err := s.mail.IsVerified(ctx, email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification store unavailable")
		return err
	}
	if !verified {
		span.SetStatus(codes.Error, "email not verified")
		return pkgerrors.ErrValidateEmail
	}

	exists, err := s.userRepo.NicknameExists(ctx, nickname)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "nickname check failed")
		return fmt.Errorf("%w: failed to check nickname", pkgerrors.ErrServer)
	}
	if exists {
		span.SetStatus(codes.Error, "duplicate nickname")
		return pkgerrors.ErrDuplicateNickname
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		return fmt.Errorf("%w: failed to hash password", pkgerrors.ErrServer)
	}

	user := &models.User{
		Email:        email,
		Nickname:     nickname,
		PasswordHash: string(hash),
		Role:         defaultRole,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user creation failed")
		slog.Error("failed to create user", "email", email, "error", err)
		return err
	}

	s.mail.ConsumeVerification(ctx, email)

	observability.AuthOutcomes.WithLabelValues("signup", "success").Inc()
	slog.Info("user signed up", "email", email, "nickname", nickname)
	return nil
}

// CheckPassword resolves the identity from the access token claims even when
// the token has expired: the endpoint sits behind a refresh flow that already
// did a hard liveness check, so the identity is still trusted.
func (s *authService) CheckPassword(ctx context.Context, password, accessToken string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "CheckPassword")
	defer span.End()

	email, err := s.subjectFromAccess(accessToken)
	if err != nil {
		span.SetStatus(codes.Error, "access token rejected")
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		span.SetStatus(codes.Error, "unknown user")
		return pkgerrors.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "incorrect password")
		return pkgerrors.ErrIncorrectPassword
	}
	return nil
}

// ChangePassword assumes the handler already passed the refresh liveness
// gate. A successful change force-invalidates the current session, so a
// stolen still-valid access token does not survive it.
func (s *authService) ChangePassword(ctx context.Context, oldPassword, newPassword, accessToken string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "ChangePassword")
	defer span.End()

	if newPassword == "" {
		span.SetStatus(codes.Error, "malformed new password")
		return pkgerrors.ErrIncorrectFormat
	}

	email, err := s.subjectFromAccess(accessToken)
	if err != nil {
		span.SetStatus(codes.Error, "access token rejected")
		return err
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		span.SetStatus(codes.Error, "unknown user")
		return pkgerrors.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		span.SetStatus(codes.Error, "incorrect password")
		return pkgerrors.ErrIncorrectPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password hashing failed")
		return fmt.Errorf("%w: failed to hash password", pkgerrors.ErrServer)
	}
	if err := s.userRepo.UpdatePassword(ctx, email, string(hash)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "password update failed")
		return err
	}

	if err := s.sessions.ForceInvalidate(ctx, email); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session invalidation failed")
		return err
	}

	observability.AuthOutcomes.WithLabelValues("change_password", "success").Inc()
	slog.Info("password changed", "email", email)
	return nil
}

func (s *authService) DeleteUser(ctx context.Context, refreshToken string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "DeleteUser")
	defer span.End()

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token rejected")
		return err
	}
	email := claims.Subject

	if err := s.userRepo.Delete(ctx, email); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "user deletion failed")
		return err
	}
	if err := s.sessions.ForceInvalidate(ctx, email); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session invalidation failed")
		return err
	}

	observability.AuthOutcomes.WithLabelValues("delete_user", "success").Inc()
	slog.Info("user deleted", "email", email)
	return nil
}

// subjectFromAccess trusts the identity inside an expired-but-well-formed
// access token; every other parse failure is rejected.
func (s *authService) subjectFromAccess(accessToken string) (string, error) {
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil && !stderrors.Is(err, pkgerrors.ErrExpiredAccessToken) {
		return "", err
	}
	return claims.Subject, nil
}
