// Package csrf issues self-verifying anti-forgery tokens bound to a single
// secret. No per-token state is kept server-side.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	nonceLen   = 16
	payloadLen = nonceLen + 8
	minSecret  = 32
)

var enc = base64.RawURLEncoding

// Issuer issues and validates tokens. It is safe for concurrent use: the
// secret is read-only after construction.
type Issuer struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

// New returns an Issuer bound to secret. A ttl of zero disables expiry, so
// tokens live as long as the secret does.
func New(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < minSecret {
		return nil, fmt.Errorf("csrf secret must be at least %d bytes", minSecret)
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Issuer{secret: s, ttl: ttl, nowFunc: time.Now}, nil
}

// GenerateSecret returns a random secret for processes that do not
// configure one. Tokens signed with it do not survive a restart.
func GenerateSecret() ([]byte, error) {
	b := make([]byte, minSecret)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate csrf secret: %w", err)
	}
	return b, nil
}

// Issue returns a fresh token.
func (i *Issuer) Issue() (string, error) {
	payload := make([]byte, payloadLen)
	if _, err := rand.Read(payload[:nonceLen]); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	binary.BigEndian.PutUint64(payload[nonceLen:], uint64(i.nowFunc().Unix()))
	return enc.EncodeToString(payload) + "." + enc.EncodeToString(i.sign(payload)), nil
}

// Validate reports whether token was issued by this secret and has not
// expired. Malformed input is rejected.
func (i *Issuer) Validate(token string) bool {
	return i.check(token) == nil
}

var (
	errMalformed = errors.New("malformed token")
	errSignature = errors.New("signature mismatch")
	errExpired   = errors.New("token expired")
)

func (i *Issuer) check(token string) error {
	p, s, ok := strings.Cut(token, ".")
	if !ok || p == "" || s == "" {
		return errMalformed
	}
	payload, err := enc.DecodeString(p)
	if err != nil || len(payload) != payloadLen {
		return errMalformed
	}
	sig, err := enc.DecodeString(s)
	if err != nil {
		return errMalformed
	}
	if !hmac.Equal(sig, i.sign(payload)) {
		return errSignature
	}
	if i.ttl > 0 {
		issued := time.Unix(int64(binary.BigEndian.Uint64(payload[nonceLen:])), 0)
		if i.nowFunc().Sub(issued) > i.ttl {
			return errExpired
		}
	}
	return nil
}

func (i *Issuer) sign(payload []byte) []byte {
	mac := hmac.New(sha256.New, i.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
