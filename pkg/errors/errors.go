package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a stable (status, code, message) triple returned to clients.
// Codes keep the numbering of the original error catalog so clients can
// match on them across releases.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrServer          = &Error{http.StatusInternalServerError, "0000", "an unknown error occurred"}
	ErrIncorrectFormat = &Error{http.StatusBadRequest, "0001", "malformed request"}

	ErrAuthentication          = &Error{http.StatusUnauthorized, "0100", "authentication failed"}
	ErrInvalidAccessToken      = &Error{http.StatusForbidden, "0102", "invalid access token"}
	ErrExpiredAccessToken      = &Error{http.StatusForbidden, "0103", "expired access token"}
	ErrUnsupportedAccessToken  = &Error{http.StatusForbidden, "0104", "unsupported access token"}
	ErrMalformedAccessToken    = &Error{http.StatusForbidden, "0105", "access token carries no claims"}
	ErrInvalidRefreshToken     = &Error{http.StatusForbidden, "0106", "invalid refresh token"}
	ErrExpiredRefreshToken     = &Error{http.StatusForbidden, "0107", "expired refresh token"}
	ErrUnsupportedRefreshToken = &Error{http.StatusForbidden, "0108", "unsupported refresh token"}
	ErrMalformedRefreshToken   = &Error{http.StatusForbidden, "0109", "refresh token carries no claims"}

	ErrStoreUnavailable = &Error{http.StatusInternalServerError, "0500", "session store unavailable"}

	ErrAuthEmail         = &Error{http.StatusUnauthorized, "1101", "wrong or expired verification code"}
	ErrValidateEmail     = &Error{http.StatusUnauthorized, "1102", "email is not verified or verification expired"}
	ErrUserNotFound      = &Error{http.StatusConflict, "1103", "unknown user or wrong password"}
	ErrIncorrectPassword = &Error{http.StatusUnauthorized, "1201", "incorrect password"}

	ErrDuplicateEmail    = &Error{http.StatusConflict, "1301", "email already in use"}
	ErrDuplicateNickname = &Error{http.StatusConflict, "1302", "nickname already in use"}
	ErrForbiddenNickname = &Error{http.StatusForbidden, "1303", "nickname is not allowed"}

	ErrRoomNotFound  = &Error{http.StatusNotFound, "2001", "chat room not found"}
	ErrDuplicateRoom = &Error{http.StatusConflict, "2002", "chat room already exists for this container"}
)

// From extracts the taxonomy entry wrapped in err, falling back to ErrServer
// so every failure still maps to a stable triple.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrServer
}
