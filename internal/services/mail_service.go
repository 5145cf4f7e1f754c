package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	stderrors "errors"

	"github.com/stellaide/server/internal/infrastructure/kafka"
	"github.com/stellaide/server/internal/infrastructure/redis"
	"github.com/stellaide/server/internal/repository"
	pkgerrors "github.com/stellaide/server/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const (
	topicMail = "mail"

	codeKeyPrefix     = "mail:code:"
	verifiedKeyPrefix = "mail:verified:"

	maxVerifyAttempts = 5
)

// MailService manages signup verification codes in the mail store. Actual
// delivery happens outside this service; codes leave here as Kafka events.
type MailService interface {
	SendVerificationCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) error
	IsVerified(ctx context.Context, email string) (bool, error)
	ConsumeVerification(ctx context.Context, email string)
}

type verificationEntry struct {
	Code     string `json:"code"`
	Attempts int    `json:"attempts"`
}

type mailService struct {
	userRepo repository.UserRepository
	store    redis.Client
	producer kafka.Producer
	codeTTL  time.Duration
}

func NewMailService(userRepo repository.UserRepository, store redis.Client, producer kafka.Producer, codeTTL time.Duration) *mailService {
	return &mailService{
		userRepo: userRepo,
		store:    store,
		producer: producer,
		codeTTL:  codeTTL,
	}
}

func (s *mailService) SendVerificationCode(ctx context.Context, email string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "SendVerificationCode")
	defer span.End()

	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		span.SetStatus(codes.Error, "duplicate email")
		return pkgerrors.ErrDuplicateEmail
	} else if !stderrors.Is(err, pkgerrors.ErrUserNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "email check failed")
		return fmt.Errorf("%w: failed to check email", pkgerrors.ErrServer)
	}

	code, err := generateCode()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "code generation failed")
		return fmt.Errorf("%w: failed to generate code", pkgerrors.ErrServer)
	}

	entry, err := json.Marshal(verificationEntry{Code: code})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: failed to marshal verification entry", pkgerrors.ErrServer)
	}
	if err := storeErr(s.store.Set(ctx, codeKeyPrefix+email, string(entry), s.codeTTL)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification store unavailable")
		return err
	}

	event := kafka.MailEvent{
		Email:     email,
		Code:      code,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal mail event", "email", email, "error", err)
	} else if err := s.producer.Send(ctx, topicMail, email, eventBytes); err != nil {
		slog.Error("failed to send mail event", "email", email, "error", err)
	}

	slog.Info("verification code issued", "email", email)
	return nil
}

func (s *mailService) VerifyCode(ctx context.Context, email, code string) error {
	tracer := otel.Tracer("stellaide-auth")
	ctx, span := tracer.Start(ctx, "VerifyCode")
	defer span.End()

	raw, err := s.store.Get(ctx, codeKeyPrefix+email)
	if stderrors.Is(err, redis.ErrKeyNotFound) {
		span.SetStatus(codes.Error, "no pending code")
		return pkgerrors.ErrAuthEmail
	}
	if err := storeErr(err); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification store unavailable")
		return err
	}

	var entry verificationEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: corrupt verification entry", pkgerrors.ErrServer)
	}

	if entry.Attempts >= maxVerifyAttempts {
		if err := s.store.Del(ctx, codeKeyPrefix+email); err != nil {
			slog.Error("failed to delete exhausted code", "email", email, "error", err)
		}
		span.SetStatus(codes.Error, "verification attempts exhausted")
		return pkgerrors.ErrAuthEmail
	}

	if entry.Code != code {
		entry.Attempts++
		if updated, err := json.Marshal(entry); err == nil {
			if err := s.store.Set(ctx, codeKeyPrefix+email, string(updated), s.codeTTL); err != nil {
				slog.Error("failed to record verification attempt", "email", email, "error", err)
			}
		}
		span.SetStatus(codes.Error, "wrong code")
		return pkgerrors.ErrAuthEmail
	}

	if err := s.store.Del(ctx, codeKeyPrefix+email); err != nil {
		slog.Error("failed to delete consumed code", "email", email, "error", err)
	}
	if err := storeErr(s.store.Set(ctx, verifiedKeyPrefix+email, "1", s.codeTTL)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "verification store unavailable")
		return err
	}

	slog.Info("email verified", "email", email)
	return nil
}

func (s *mailService) IsVerified(ctx context.Context, email string) (bool, error) {
	verified, err := s.store.Exists(ctx, verifiedKeyPrefix+email)
	if err != nil {
		return false, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}
	return verified, nil
}

// ConsumeVerification removes the verified marker once signup succeeds.
// Best effort: the marker expires with the store TTL anyway.
func (s *mailService) ConsumeVerification(ctx context.Context, email string) {
	if err := s.store.Del(ctx, verifiedKeyPrefix+email); err != nil {
		slog.Error("failed to consume verified marker", "email", email, "error", err)
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
