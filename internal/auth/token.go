package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ruangkelas/pkg/types"
)

// Claims is the payload carried by a session token.
// ARCHITECTURAL DISCOVERY: Tokens are stateless; nothing about a session is stored
// server-side, so revocation is not possible and freshness is a caller policy
type Claims struct {
	UserID   int64      `json:"userId"`
	Role     types.Role `json:"role"`
	IssuedAt int64      `json:"issuedAt"` // unix milliseconds
}

// maxClockSkew tolerates tokens minted by a host whose clock runs slightly ahead
const maxClockSkew = time.Minute

// Sign encodes data as base64url JSON and appends a base64url HMAC-SHA256 of that payload
func Sign(data interface{}, secret []byte) (string, error) {
	payloadBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal token payload: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(payloadBytes)
	return payload + "." + signature(secret, payload), nil
}

// Verify checks the signature of token and decodes its payload into out.
// FUNCTIONAL DISCOVERY: Signature is compared in constant time before the payload
// is decoded, so a forged token never reaches the JSON decoder
func Verify(token string, secret []byte, out interface{}) error {
	idx := strings.LastIndex(token, ".")
	if idx <= 0 || idx == len(token)-1 {
		return ErrInvalidToken
	}
	payload, sig := token[:idx], token[idx+1:]

	expected := signature(secret, payload)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ErrInvalidToken
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return ErrInvalidToken
	}
	if err := json.Unmarshal(decoded, out); err != nil {
		return ErrInvalidToken
	}
	return nil
}

// IssueToken signs session claims
func IssueToken(secret []byte, claims Claims) (string, error) {
	if claims.UserID <= 0 || !claims.Role.Valid() {
		return "", ErrInvalidClaims
	}
	return Sign(claims, secret)
}

// ParseToken verifies a session token and validates the claim shape.
// Expiry is not checked here; see CheckFreshness.
func ParseToken(secret []byte, token string) (Claims, error) {
	var claims Claims
	if err := Verify(token, secret, &claims); err != nil {
		return Claims{}, err
	}
	if claims.UserID <= 0 || !claims.Role.Valid() || claims.IssuedAt <= 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// CheckFreshness applies a TTL policy to already-verified claims. A non-positive ttl disables it.
func CheckFreshness(claims Claims, ttl time.Duration, now time.Time) error {
	issued := time.UnixMilli(claims.IssuedAt)
	if issued.After(now.Add(maxClockSkew)) {
		return ErrTokenFromFuture
	}
	if ttl <= 0 {
		return nil
	}
	if now.Sub(issued) >= ttl {
		return ErrExpiredToken
	}
	return nil
}

func signature(secret []byte, payload string) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
