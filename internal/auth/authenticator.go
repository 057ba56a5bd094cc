package auth

import (
	"fmt"
	"time"
)

// Credentials is one configured account: a username, an Argon2id PHC
// password hash, and a role tier.
type Credentials struct {
	Username     string
	PasswordHash string
	Role         Role
}

// Authenticator verifies config-declared users and issues access
// tokens. Accounts live in the config file, so there is no user store
// to manage; changing users means editing config and restarting.
//
// Thread Safety: Authenticator is immutable after construction and safe
// for concurrent use.
type Authenticator struct {
	users  map[string]Credentials
	secret string
	ttl    time.Duration
}

// NewAuthenticator builds an authenticator from configured accounts.
// An empty role defaults to viewer; unknown roles and duplicate
// usernames are rejected so misconfigurations surface at startup.
func NewAuthenticator(users []Credentials, secret string, ttl time.Duration) (*Authenticator, error) {
	byName := make(map[string]Credentials, len(users))
	for _, u := range users {
		if u.Role == "" {
			u.Role = RoleViewer
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("%w: user %q has role %q", ErrInvalidRole, u.Username, u.Role)
		}
		if _, exists := byName[u.Username]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateUser, u.Username)
		}
		byName[u.Username] = u
	}

	return &Authenticator{users: byName, secret: secret, ttl: ttl}, nil
}

// Login verifies a username and password and returns a signed access
// token with the authenticated user. Unknown usernames and wrong
// passwords both return ErrInvalidCredentials.
func (a *Authenticator) Login(username, password string) (string, *User, error) {
	creds, ok := a.users[username]
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, creds.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !match {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateAccessToken(creds.Username, creds.Role, a.secret, a.ttl)
	if err != nil {
		return "", nil, err
	}

	return token, &User{Username: creds.Username, Role: creds.Role}, nil
}

// Verify parses and validates an access token.
func (a *Authenticator) Verify(tokenString string) (*Claims, error) {
	return ParseToken(tokenString, a.secret)
}

// TokenTTL returns the configured access token lifetime.
func (a *Authenticator) TokenTTL() time.Duration {
	if a.ttl <= 0 {
		return defaultAccessTokenTTL
	}
	return a.ttl
}
