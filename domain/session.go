package domain

// TokenPair is the credential pair minted by the backend: a short-lived
// bearer access token and the long-lived refresh token used only to mint
// new access tokens.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is the authenticated identity held client-side. It is the single
// blob persisted to durable storage between runs.
type Session struct {
	User         *User  `json:"user,omitempty"`
	AccessToken  string `json:"accessToken,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// IsAuthenticated reports whether the session carries both a user and an
// access token. It is derived, never stored.
func (s Session) IsAuthenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Empty reports whether the session holds no credentials at all.
func (s Session) Empty() bool {
	return s.User == nil && s.AccessToken == "" && s.RefreshToken == ""
}
