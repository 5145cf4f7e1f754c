package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	"github.com/stellaide/server/internal/infrastructure/auth"
	"github.com/stellaide/server/internal/infrastructure/kafka"
	"github.com/stellaide/server/internal/infrastructure/observability"
	"github.com/stellaide/server/internal/infrastructure/redis"
	"github.com/stellaide/server/internal/models"
	"github.com/stellaide/server/internal/repository"
	pkgerrors "github.com/stellaide/server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/crypto/bcrypt"
)

const (
	topicAuthEvents = "auth-events"

	sessionKeyPrefix = "refresh:"
	loginKeyPrefix   = "login:"
)

// SessionService owns the refresh-session lifecycle. The sessions store is
// the single source of truth for which refresh token is live for a subject;
// a cryptographically valid token that is not the stored one is dead.
type SessionService interface {
	Login(ctx context.Context, email, password, oldRefreshToken, userAgent string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	RefreshAccess(ctx context.Context, refreshToken string) (string, error)
	CheckRefreshTokenState(ctx context.Context, refreshToken string) (bool, error)
	ForceInvalidate(ctx context.Context, email string) error
}

type sessionService struct {
	userRepo repository.UserRepository
	sessions redis.Client
	logins   redis.Client
	tokens   *auth.Provider
	producer kafka.Producer
}

func NewSessionService(
	userRepo repository.UserRepository,
	sessions redis.Client,
	logins redis.Client,
	tokens *auth.Provider,
	producer kafka.Producer,
) *sessionService {
	return &sessionService{
		userRepo: userRepo,
		sessions: sessions,
		logins:   logins,
		tokens:   tokens,
		producer: producer,
	}
}

func sessionKey(email string) string { return sessionKeyPrefix + email }
func loginKey(email string) string   { return loginKeyPrefix + email }

// storeErr maps any store failure other than a missing key to
// ErrStoreUnavailable. Auth never degrades to "treat as logged in" or
// "treat as logged out" when the store is unreachable.
func storeErr(err error) error {
	if err == nil || stderrors.Is(err, redis.ErrKeyNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
}

func (s *sessionService) Login(ctx context.Context, email, password, oldRefreshToken, userAgent string) (*models.TokenPair, error) {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		span.SetStatus(codes.Error, "unknown user")
		slog.Warn("login failed", "email", email, "error", err)
		observability.AuthOutcomes.WithLabelValues("login", "failure").Inc()
		return nil, pkgerrors.ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		span.SetStatus(codes.Error, "wrong password")
		slog.Warn("login failed", "email", email)
		observability.AuthOutcomes.WithLabelValues("login", "failure").Inc()
		return nil, pkgerrors.ErrUserNotFound
	}

	// A refresh token still sitting in the browser cookie gets revoked
	// before the new session is registered: logging in elsewhere ends the
	// previous browser's session.
	if oldRefreshToken != "" {
		stored, err := s.sessions.Get(ctx, sessionKey(email))
		if err := storeErr(err); err != nil && !stderrors.Is(err, redis.ErrKeyNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "session store unavailable")
			return nil, err
		}
		if stored == oldRefreshToken {
			if err := storeErr(s.sessions.Del(ctx, sessionKey(email))); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "session store unavailable")
				return nil, err
			}
			slog.Info("previous refresh session revoked on login", "email", email)
		}
	}

	accessToken, err := s.tokens.IssueAccessToken(user.Email, user.Role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue access token")
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refreshToken, err := s.tokens.IssueRefreshToken(user.Email)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue refresh token")
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}

	// Last write wins on this single key: concurrent logins race harmlessly
	// and the loser's token fails its next liveness check.
	if err := storeErr(s.sessions.Set(ctx, sessionKey(email), refreshToken, s.tokens.RefreshTTL())); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to register refresh session")
		return nil, err
	}

	record := models.LoginRecord{
		Email:     user.Email,
		LastLogin: time.Now().UTC().Format(time.RFC3339),
		UserAgent: userAgent,
	}
	recordBytes, err := json.Marshal(record)
	if err == nil {
		if err := s.logins.Set(ctx, loginKey(email), string(recordBytes), s.tokens.RefreshTTL()); err != nil {
			slog.Error("failed to record login", "email", email, "error", err)
		}
	}

	s.emitEvent(ctx, "user_logged_in", user.Email)

	observability.AuthOutcomes.WithLabelValues("login", "success").Inc()
	slog.Info("user logged in", "email", email)
	return &models.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

func (s *sessionService) Logout(ctx context.Context, refreshToken string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "Logout")
	defer span.End()

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token rejected")
		observability.AuthOutcomes.WithLabelValues("logout", "failure").Inc()
		return err
	}
	email := claims.Subject

	stored, err := s.sessions.Get(ctx, sessionKey(email))
	if stderrors.Is(err, redis.ErrKeyNotFound) || (err == nil && stored != refreshToken) {
		// Replaying logout with an already-removed or superseded token
		// fails cleanly instead of touching another session's state.
		span.SetStatus(codes.Error, "no matching refresh session")
		observability.AuthOutcomes.WithLabelValues("logout", "failure").Inc()
		return pkgerrors.ErrInvalidRefreshToken
	}
	if err := storeErr(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session store unavailable")
		return err
	}

	if err := storeErr(s.sessions.Del(ctx, sessionKey(email))); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session store unavailable")
		return err
	}
	if err := s.logins.Del(ctx, loginKey(email)); err != nil {
		slog.Error("failed to delete login record", "email", email, "error", err)
	}

	s.emitEvent(ctx, "user_logged_out", email)

	observability.AuthOutcomes.WithLabelValues("logout", "success").Inc()
	slog.Info("user logged out", "email", email)
	return nil
}

func (s *sessionService) RefreshAccess(ctx context.Context, refreshToken string) (string, error) {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "RefreshAccess")
	defer span.End()

	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh token rejected")
		observability.AuthOutcomes.WithLabelValues("refresh", "failure").Inc()
		return "", err
	}
	email := claims.Subject

	live, err := s.checkState(ctx, email, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session store unavailable")
		return "", err
	}
	if !live {
		span.SetStatus(codes.Error, "refresh session not live")
		observability.AuthOutcomes.WithLabelValues("refresh", "failure").Inc()
		return "", pkgerrors.ErrExpiredRefreshToken
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		span.SetStatus(codes.Error, "unknown user")
		return "", pkgerrors.ErrUserNotFound
	}

	// The refresh token itself is not rotated here; it only rotates on
	// login.
	accessToken, err := s.tokens.IssueAccessToken(user.Email, user.Role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to issue access token")
		return "", fmt.Errorf("failed to issue access token: %w", err)
	}

	observability.AuthOutcomes.WithLabelValues("refresh", "success").Inc()
	slog.Info("access token reissued", "email", email)
	return accessToken, nil
}

func (s *sessionService) CheckRefreshTokenState(ctx context.Context, refreshToken string) (bool, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return false, err
	}
	return s.checkState(ctx, claims.Subject, refreshToken)
}

func (s *sessionService) checkState(ctx context.Context, email, refreshToken string) (bool, error) {
	stored, err := s.sessions.Get(ctx, sessionKey(email))
	if stderrors.Is(err, redis.ErrKeyNotFound) {
		return false, nil
	}
	if err := storeErr(err); err != nil {
		return false, err
	}
	return stored == refreshToken, nil
}

func (s *sessionService) ForceInvalidate(ctx context.Context, email string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "ForceInvalidate")
	defer span.End()

	if err := storeErr(s.sessions.Del(ctx, sessionKey(email))); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session store unavailable")
		return err
	}
	if err := s.logins.Del(ctx, loginKey(email)); err != nil {
		slog.Error("failed to delete login record", "email", email, "error", err)
	}

	slog.Info("refresh session force-invalidated", "email", email)
	return nil
}

func (s *sessionService) emitEvent(ctx context.Context, eventType, email string) {
	event := map[string]interface{}{
		"event_type": eventType,
		"email":      email,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal auth event", "event_type", eventType, "error", err)
		return
	}
	if err := s.producer.Send(ctx, topicAuthEvents, email, eventBytes); err != nil {
		slog.Error("failed to send auth event", "event_type", eventType, "email", email, "error", err)
	}
}
