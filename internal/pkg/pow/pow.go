/*
Package pow implements a Proof-of-Work gate for abuse-prone HTTP endpoints.

Clients fetch a nonce, search for a counter whose SHA-256(nonce+counter) hex digest starts
with the configured number of zeros, and exchange the proof for a short-lived, single-use
token that must accompany the protected request.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the HTTP header key used by the client to send the Proof Token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is the validity period for the Proof Token issued after successful PoW validation.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is the validity period for the challenge Nonce.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	// ErrNonceInvalid is returned for unknown, expired or already consumed nonces.
	ErrNonceInvalid = errors.New("nonce expired or invalid")

	// ErrProofInsufficient is returned when the hash does not meet the difficulty.
	ErrProofInsufficient = errors.New("proof does not meet difficulty requirement")
)

// Manager tracks outstanding nonces and issued proof tokens. It is safe for concurrent use.
type Manager struct {
	difficulty int

	// nonceStore maps outstanding nonces to their expiry.
	nonceStore map[string]time.Time

	// tokenStore maps issued proof tokens to their expiry.
	tokenStore map[string]time.Time

	mu sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a Manager for the given difficulty and starts its cleanup goroutine.
func NewManager(difficulty int) *Manager {
	mgr := &Manager{
		difficulty: difficulty,
		nonceStore: make(map[string]time.Time),
		tokenStore: make(map[string]time.Time),
		stop:       make(chan struct{}),
	}

	go mgr.cleanupExpiredEntries()

	return mgr
}

// Difficulty returns the number of leading hex zeros a proof must have.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// GenerateNonce creates and records a new challenge nonce.
func (m *Manager) GenerateNonce() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.New().String()
	m.nonceStore[nonce] = time.Now().Add(NonceExpiryDuration)
	return nonce
}

// Solve brute-forces a counter for nonce. It exists for tests and reference clients.
func Solve(nonce string, difficulty int) string {
	prefix := strings.Repeat("0", difficulty)
	for i := 0; ; i++ {
		counter := fmt.Sprint(i)
		if meetsDifficulty(nonce, counter, prefix) {
			return counter
		}
	}
}

func meetsDifficulty(nonce, counter, prefix string) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), prefix)
}

// ValidateProof checks the proof for nonce, consumes the nonce and issues a proof token.
func (m *Manager) ValidateProof(nonce, counter string) (string, error) {
	m.mu.Lock()
	expiryTime, ok := m.nonceStore[nonce]
	m.mu.Unlock()

	if !ok || time.Now().After(expiryTime) {
		return "", ErrNonceInvalid
	}

	if !meetsDifficulty(nonce, counter, strings.Repeat("0", m.difficulty)) {
		return "", ErrProofInsufficient
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, stillExists := m.nonceStore[nonce]; !stillExists {
		return "", ErrNonceInvalid
	}
	delete(m.nonceStore, nonce)

	token := uuid.New().String()
	m.tokenStore[token] = time.Now().Add(ProofTokenDuration)
	return token, nil
}

// ConsumeProofToken reports whether r carries a valid proof token (header or pow_token query
// parameter) and invalidates it so it cannot be replayed.
func (m *Manager) ConsumeProofToken(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiryTime, ok := m.tokenStore[token]
	if !ok {
		return false
	}
	delete(m.tokenStore, token)

	return time.Now().Before(expiryTime)
}

// Stop terminates the cleanup goroutine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// cleanupExpiredEntries periodically removes expired nonces and tokens.
func (m *Manager) cleanupExpiredEntries() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for nonce, expiry := range m.nonceStore {
				if now.After(expiry) {
					delete(m.nonceStore, nonce)
				}
			}
			for token, expiry := range m.tokenStore {
				if now.After(expiry) {
					delete(m.tokenStore, token)
				}
			}
			m.mu.Unlock()
		}
	}
}
