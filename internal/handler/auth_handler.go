package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	stderrors "errors"

	"github.com/gorilla/mux"
	"github.com/stellaide/server/internal/infrastructure/auth"
	service "github.com/stellaide/server/internal/services"
	pkgerrors "github.com/stellaide/server/pkg/errors"
)

const refreshCookieName = "refreshToken"

// AuthHandler owns the /api/auth surface. Validation ordering is the point
// here: access tokens are checked leniently (expired-but-well-formed is
// accepted as a known identity), refresh tokens always strictly, with a
// store liveness check in front of every sensitive mutation.
type AuthHandler struct {
	authService    service.AuthService
	sessionService service.SessionService
	mailService    service.MailService
	tokens         *auth.Provider
}

func NewAuthHandler(
	authService service.AuthService,
	sessionService service.SessionService,
	mailService service.MailService,
	tokens *auth.Provider,
) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionService: sessionService,
		mailService:    mailService,
		tokens:         tokens,
	}
}

func (h *AuthHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/mail/send", h.SendMail).Methods("POST")
	r.HandleFunc("/mail/verify", h.VerifyMail).Methods("POST")
	r.HandleFunc("/signup", h.Signup).Methods("POST")
	r.HandleFunc("/login", h.Login).Methods("POST")
	r.HandleFunc("/logout", h.Logout).Methods("DELETE")
	r.HandleFunc("/delete/user", h.DeleteUser).Methods("DELETE")
	r.HandleFunc("/checkPassword", h.CheckPassword).Methods("POST")
	r.HandleFunc("/changePassword", h.ChangePassword).Methods("PATCH")
	r.HandleFunc("/refresh", h.Refresh).Methods("POST")
}

func (h *AuthHandler) SendMail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}
	if err := h.mailService.SendVerificationCode(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, "verification code sent")
}

func (h *AuthHandler) VerifyMail(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}
	if err := h.mailService.VerifyCode(r.Context(), req.Email, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, "email verified")
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Nickname string `json:"nickname"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}
	if err := h.authService.Signup(r.Context(), req.Email, req.Password, req.Nickname); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, "successfully signed up")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}

	// A refresh token already sitting in the cookie belongs to the previous
	// session in this browser; login revokes it.
	oldRefreshToken := h.refreshFromCookie(r)

	pair, err := h.sessionService.Login(r.Context(), req.Email, req.Password, oldRefreshToken, r.UserAgent())
	if err != nil {
		writeError(w, err)
		return
	}

	// Client-side cookie expiry lands just before the server-side token
	// expiry.
	h.setRefreshCookie(w, pair.RefreshToken, int(h.tokens.RefreshTTL().Seconds())-1)
	w.Header().Set("Authorization", "Bearer "+pair.AccessToken)
	writeText(w, "successfully logged in")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.validateAccessLenient(r); err != nil {
		writeError(w, err)
		return
	}
	refreshToken, err := h.validateRefresh(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.sessionService.Logout(r.Context(), refreshToken); err != nil {
		if isRefreshRejection(err) {
			h.clearRefreshCookie(w)
		}
		writeError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeText(w, "successfully logged out")
}

func (h *AuthHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	refreshToken, err := h.validateRefresh(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireLiveSession(w, r, refreshToken); err != nil {
		writeError(w, err)
		return
	}

	if err := h.authService.DeleteUser(r.Context(), refreshToken); err != nil {
		writeError(w, err)
		return
	}

	h.clearRefreshCookie(w)
	writeText(w, "account deleted")
}

func (h *AuthHandler) CheckPassword(w http.ResponseWriter, r *http.Request) {
	accessToken, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}

	if err := h.authService.CheckPassword(r.Context(), req.Password, accessToken); err != nil {
		writeError(w, err)
		return
	}
	writeText(w, "password confirmed")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	accessToken, err := auth.BearerToken(r)
	if err != nil {
		writeError(w, err)
		return
	}
	refreshToken, err := h.validateRefresh(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireLiveSession(w, r, refreshToken); err != nil {
		writeError(w, err)
		return
	}

	var req struct {
		Password    string `json:"password"`
		NewPassword string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, pkgerrors.ErrIncorrectFormat)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), req.Password, req.NewPassword, accessToken); err != nil {
		writeError(w, err)
		return
	}

	// The current session died with the old password; the cookie goes too.
	h.clearRefreshCookie(w)
	writeText(w, "password changed, please log in again")
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.validateAccessLenient(r); err != nil {
		writeError(w, err)
		return
	}
	refreshToken, err := h.validateRefresh(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.requireLiveSession(w, r, refreshToken); err != nil {
		writeError(w, err)
		return
	}

	accessToken, err := h.sessionService.RefreshAccess(r.Context(), refreshToken)
	if err != nil {
		if isRefreshRejection(err) {
			h.clearRefreshCookie(w)
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Authorization", "Bearer "+accessToken)
	writeText(w, "access token reissued")
}

// validateAccessLenient accepts an expired-but-well-formed access token:
// identity is known, the short TTL just ran out. Any other defect is a
// generic authentication failure.
func (h *AuthHandler) validateAccessLenient(r *http.Request) error {
	accessToken, err := auth.BearerToken(r)
	if err != nil {
		return err
	}
	if _, err := h.tokens.ParseAccess(accessToken); err != nil {
		if stderrors.Is(err, pkgerrors.ErrExpiredAccessToken) {
			slog.Info("expired but untampered access token accepted", "path", r.URL.Path)
			return nil
		}
		return pkgerrors.ErrAuthentication
	}
	return nil
}

// validateRefresh checks signature and structure of the cookie token. Any
// failure clears the cookie so a dead token never lingers client-side.
func (h *AuthHandler) validateRefresh(w http.ResponseWriter, r *http.Request) (string, error) {
	refreshToken := h.refreshFromCookie(r)
	if refreshToken == "" {
		return "", pkgerrors.ErrInvalidRefreshToken
	}
	if _, err := h.tokens.ParseRefresh(refreshToken); err != nil {
		h.clearRefreshCookie(w)
		return "", err
	}
	return refreshToken, nil
}

// requireLiveSession gates sensitive mutations on the store: the presented
// refresh token must still be the registered session for its subject.
func (h *AuthHandler) requireLiveSession(w http.ResponseWriter, r *http.Request, refreshToken string) error {
	live, err := h.sessionService.CheckRefreshTokenState(r.Context(), refreshToken)
	if err != nil {
		return err
	}
	if !live {
		h.clearRefreshCookie(w)
		return pkgerrors.ErrExpiredRefreshToken
	}
	return nil
}

func (h *AuthHandler) refreshFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	h.setRefreshCookie(w, "", -1)
}

func isRefreshRejection(err error) bool {
	return stderrors.Is(err, pkgerrors.ErrInvalidRefreshToken) ||
		stderrors.Is(err, pkgerrors.ErrExpiredRefreshToken)
}
