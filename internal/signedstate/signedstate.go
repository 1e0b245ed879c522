// Package signedstate produces tamper-evident state tokens for the OAuth
// authorization flow. A token carries a state identifier, a timestamp, and an
// HMAC-SHA256 signature keyed with the org session secret, encoded as a
// single opaque base64url string.
package signedstate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMalformedToken indicates the token could not be decoded.
	ErrMalformedToken = errors.New("signedstate: malformed token")
	// ErrSignatureMismatch indicates the signature does not verify.
	ErrSignatureMismatch = errors.New("signedstate: signature mismatch")
	// ErrExpired indicates the token is older than the freshness window.
	ErrExpired = errors.New("signedstate: token expired")
)

// Sign binds stateID to the current time under secret and returns the
// encoded token.
func Sign(stateID, secret string) string {
	return signAt(stateID, secret, time.Now())
}

func signAt(stateID, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	sig := computeSignature(stateID, ts, secret)
	payload := stateID + "." + ts + "." + sig
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// Verify decodes token, checks its signature in constant time against
// secret, and rejects tokens older than maxAge regardless of any cache TTL.
// On success it returns the embedded state identifier.
func Verify(token, secret string, maxAge time.Duration) (string, error) {
	return verifyAt(token, secret, maxAge, time.Now())
}

func verifyAt(token, secret string, maxAge time.Duration, now time.Time) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrMalformedToken
	}

	parts := strings.Split(string(raw), ".")
	if len(parts) != 3 {
		return "", ErrMalformedToken
	}
	stateID, ts, sig := parts[0], parts[1], parts[2]
	if stateID == "" || ts == "" || sig == "" {
		return "", ErrMalformedToken
	}

	expected := computeSignature(stateID, ts, secret)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return "", ErrSignatureMismatch
	}

	issued, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", ErrMalformedToken
	}
	age := now.Sub(time.Unix(issued, 0))
	if age > maxAge || age < -clockSkew {
		return "", ErrExpired
	}

	return stateID, nil
}

// clockSkew tolerates minor drift between signer and verifier.
const clockSkew = time.Minute

func computeSignature(stateID, ts, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s.%s", stateID, ts)
	return hex.EncodeToString(mac.Sum(nil))
}
