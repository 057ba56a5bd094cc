package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hearth-home/hearth-core/internal/auth"
)

// ticketTTL bounds the window between requesting a WebSocket ticket
// and using it. The upgrade normally follows within milliseconds.
const ticketTTL = 60 * time.Second

// Wire shapes for POST /auth/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Role        string `json:"role"`
}

// handleLogin checks the credentials against the configured accounts
// and hands out a JWT access token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	token, user, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.logger.Warn("login rejected", "username", req.Username)
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login failed", "username", req.Username, "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	s.logger.Info("login", "username", user.Username, "role", user.Role)

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.auth.TokenTTL().Seconds()),
		Role:        string(user.Role),
	})
}

// handleWSTicket issues a single-use ticket for the WebSocket upgrade.
// Browsers cannot attach an Authorization header to that request, and
// putting the JWT in the URL would land it in access logs; the ticket
// is the indirection that avoids both.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims, ok := claimsFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "missing authentication")
		return
	}

	ticket := s.tickets.issue(claims.Subject, claims.Role)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketStore tracks outstanding WebSocket tickets together with the
// identity each was issued to, so the socket inherits the caller's
// username and role.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	username  string
	role      auth.Role
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue mints a ticket bound to the caller's identity.
func (t *ticketStore) issue(username string, role auth.Role) string {
	ticket := newTicket()

	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		username:  username,
		role:      role,
		expiresAt: time.Now().Add(ticketTTL),
	}
	t.mu.Unlock()

	return ticket
}

// redeem trades a ticket for the identity it was issued to. A ticket
// is spent on first sight, valid or not.
func (t *ticketStore) redeem(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(t.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// sweep drops tickets that expired without being redeemed.
func (t *ticketStore) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// sweepLoop keeps the store bounded until the context ends.
func (t *ticketStore) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// ticketBytes sizes a ticket at 256 bits of randomness.
const ticketBytes = 32

func newTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand never fails on supported platforms
	io.ReadFull(rand.Reader, b)
	return hex.EncodeToString(b)
}
