package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stellaide/server/internal/infrastructure/auth"
	pkgerrors "github.com/stellaide/server/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type authFixture struct {
	auth     *authService
	sessions *sessionService
	mail     *mailService
	repo     *fakeUserRepo
	tokens   *auth.Provider
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	repo := newFakeUserRepo()
	tokens := auth.NewProvider("test-secret", time.Minute, time.Hour)
	producer := &fakeProducer{}
	sessions := NewSessionService(repo, newFakeRedis(), newFakeRedis(), tokens, producer)
	mail := NewMailService(repo, newFakeRedis(), producer, 5*time.Minute)
	return &authFixture{
		auth:     NewAuthService(repo, mail, sessions, tokens),
		sessions: sessions,
		mail:     mail,
		repo:     repo,
		tokens:   tokens,
	}
}

func (f *authFixture) verifyEmail(t *testing.T, email string) {
	t.Helper()
	ctx := context.Background()
	assert.NoError(t, f.mail.SendVerificationCode(ctx, email))
	raw, err := f.mail.store.Get(ctx, codeKeyPrefix+email)
	assert.NoError(t, err)
	var entry verificationEntry
	assert.NoError(t, json.Unmarshal([]byte(raw), &entry))
	assert.NoError(t, f.mail.VerifyCode(ctx, email, entry.Code))
}

func TestAuthService_Signup(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	t.Run("unverified email rejected", func(t *testing.T) {
		err := f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick")
		assert.ErrorIs(t, err, pkgerrors.ErrValidateEmail)
	})

	t.Run("success after verification", func(t *testing.T) {
		f.verifyEmail(t, "a@x.com")
		assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

		user, err := f.repo.GetByEmail(ctx, "a@x.com")
		assert.NoError(t, err)
		assert.Equal(t, "nick", user.Nickname)
		assert.Equal(t, "USER", user.Role)
		assert.NotEqual(t, "Pw1!", user.PasswordHash)
	})

	t.Run("verified marker is consumed", func(t *testing.T) {
		verified, err := f.mail.IsVerified(ctx, "a@x.com")
		assert.NoError(t, err)
		assert.False(t, verified)
	})

	t.Run("duplicate nickname rejected", func(t *testing.T) {
		f.verifyEmail(t, "b@x.com")
		err := f.auth.Signup(ctx, "b@x.com", "Pw1!", "nick")
		assert.ErrorIs(t, err, pkgerrors.ErrDuplicateNickname)
	})

	t.Run("forbidden nickname rejected", func(t *testing.T) {
		f.verifyEmail(t, "c@x.com")
		err := f.auth.Signup(ctx, "c@x.com", "Pw1!", "admin")
		assert.ErrorIs(t, err, pkgerrors.ErrForbiddenNickname)
	})

	t.Run("malformed email rejected", func(t *testing.T) {
		err := f.auth.Signup(ctx, "not-an-email", "Pw1!", "nick2")
		assert.ErrorIs(t, err, pkgerrors.ErrIncorrectFormat)
	})
}

func TestAuthService_CheckPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verifyEmail(t, "a@x.com")
	assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

	accessToken, err := f.tokens.IssueAccessToken("a@x.com", "USER")
	assert.NoError(t, err)

	assert.NoError(t, f.auth.CheckPassword(ctx, "Pw1!", accessToken))
	assert.ErrorIs(t, f.auth.CheckPassword(ctx, "wrong", accessToken), pkgerrors.ErrIncorrectPassword)
}

func TestAuthService_CheckPasswordWithExpiredAccessToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verifyEmail(t, "a@x.com")
	assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

	// The identity inside an expired-but-well-formed access token is still
	// trusted; only the TTL lapsed.
	expired := auth.NewProvider("test-secret", -time.Minute, time.Hour)
	accessToken, err := expired.IssueAccessToken("a@x.com", "USER")
	assert.NoError(t, err)

	assert.NoError(t, f.auth.CheckPassword(ctx, "Pw1!", accessToken))
}

func TestAuthService_CheckPasswordWithTamperedToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	other := auth.NewProvider("other-secret", time.Minute, time.Hour)
	forged, err := other.IssueAccessToken("a@x.com", "USER")
	assert.NoError(t, err)

	err = f.auth.CheckPassword(ctx, "Pw1!", forged)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAccessToken)
}

func TestAuthService_ChangePasswordInvalidatesSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verifyEmail(t, "a@x.com")
	assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

	pair, err := f.sessions.Login(ctx, "a@x.com", "Pw1!", "", "")
	assert.NoError(t, err)

	assert.NoError(t, f.auth.ChangePassword(ctx, "Pw1!", "NewPw2@", pair.AccessToken))

	// The old refresh session died with the password change.
	_, err = f.sessions.RefreshAccess(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, pkgerrors.ErrExpiredRefreshToken)

	// Old password no longer logs in, the new one does.
	_, err = f.sessions.Login(ctx, "a@x.com", "Pw1!", "", "")
	assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)
	_, err = f.sessions.Login(ctx, "a@x.com", "NewPw2@", "", "")
	assert.NoError(t, err)
}

func TestAuthService_ChangePasswordWithWrongOldPassword(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verifyEmail(t, "a@x.com")
	assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

	accessToken, err := f.tokens.IssueAccessToken("a@x.com", "USER")
	assert.NoError(t, err)

	err = f.auth.ChangePassword(ctx, "wrong", "NewPw2@", accessToken)
	assert.ErrorIs(t, err, pkgerrors.ErrIncorrectPassword)
}

func TestAuthService_DeleteUser(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.verifyEmail(t, "a@x.com")
	assert.NoError(t, f.auth.Signup(ctx, "a@x.com", "Pw1!", "nick"))

	pair, err := f.sessions.Login(ctx, "a@x.com", "Pw1!", "", "")
	assert.NoError(t, err)

	assert.NoError(t, f.auth.DeleteUser(ctx, pair.RefreshToken))

	_, err = f.repo.GetByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, pkgerrors.ErrUserNotFound)

	_, err = f.sessions.RefreshAccess(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, pkgerrors.ErrExpiredRefreshToken)
}
