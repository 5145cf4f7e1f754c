package models

// TokenPair is what a successful login hands back: the access token travels
// in the Authorization header, the refresh token in an HTTP-only cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// LoginRecord is the session metadata kept in the login-tracking store,
// expiring together with the refresh session.
type LoginRecord struct {
	Email     string `json:"email"`
	LastLogin string `json:"last_login"`
	UserAgent string `json:"user_agent,omitempty"`
}
