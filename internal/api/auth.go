package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// tokenIssuer is set on issued tokens and required when parsing.
	tokenIssuer = "shellupdater"

	// ticketTTL is how long a WebSocket ticket is valid.
	ticketTTL = 60 * time.Second

	// ticketBytes is the number of random bytes used for WebSocket tickets.
	ticketBytes = 32
)

// ErrInvalidToken is returned by ParseToken for any token that does not
// verify.
var ErrInvalidToken = errors.New("api: invalid token")

// Claims are the JWT claims carried by API tokens.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 API token for subject, valid for ttl.
//
// Parameters:
//   - secret: security.jwt.secret
//   - subject: Who the token is for (logged with each request)
//   - ttl: Token lifetime; zero or negative issues a token without expiry
//
// Returns:
//   - string: The signed token
//   - error: If secret is empty or signing fails
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty signing secret", ErrInvalidToken)
	}

	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		Issuer:   tokenIssuer,
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken verifies raw against secret and returns its claims. Only HS256
// tokens from this issuer are accepted.
func ParseToken(secret, raw string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty signing secret", ErrInvalidToken)
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	mu      sync.Mutex
	tickets map[string]time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]time.Time)}
}

// issue creates and stores a new ticket.
func (ts *ticketStore) issue() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	ticket := hex.EncodeToString(b)

	ts.mu.Lock()
	ts.tickets[ticket] = time.Now().Add(ticketTTL)
	ts.mu.Unlock()
	return ticket
}

// consume reports whether ticket is valid and removes it.
func (ts *ticketStore) consume(ticket string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	expiresAt, ok := ts.tickets[ticket]
	if !ok {
		return false
	}
	delete(ts.tickets, ticket)
	return time.Now().Before(expiresAt)
}

// clean drops expired tickets.
func (ts *ticketStore) clean() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, expiresAt := range ts.tickets {
		if now.After(expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanLoop runs clean periodically until ctx is cancelled.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.clean()
		}
	}
}

// handleWSTicket issues a single-use WebSocket ticket to an authenticated
// caller, so the token itself never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     s.tickets.issue(),
		"expires_in": int(ticketTTL.Seconds()),
	})
}
