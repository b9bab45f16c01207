package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const tokenMaxAge = 5 * time.Minute

var ErrInvalidToken = errors.New("invalid caller token")

// ValidateCallerToken checks an url-encoded caller token of the form
// address=...&auth_date=...&hash=... and returns the caller address.
// The hash is HMAC-SHA256 over the sorted key=value lines, keyed by
// HMAC-SHA256("CallerData", secret).
func ValidateCallerToken(token, secret string, now time.Time) (string, error) {
	vals, err := url.ParseQuery(token)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", ErrInvalidToken)
	}

	receivedHash := vals.Get("hash")
	if receivedHash == "" {
		return "", fmt.Errorf("missing hash: %w", ErrInvalidToken)
	}

	address := vals.Get("address")
	if address == "" {
		return "", fmt.Errorf("missing address: %w", ErrInvalidToken)
	}

	ts, err := strconv.ParseInt(vals.Get("auth_date"), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid auth_date: %w", ErrInvalidToken)
	}
	if now.Sub(time.Unix(ts, 0)) > tokenMaxAge {
		return "", fmt.Errorf("token expired: %w", ErrInvalidToken)
	}

	want := sign(vals, secret)
	if !hmac.Equal([]byte(want), []byte(receivedHash)) {
		return "", fmt.Errorf("hash mismatch: %w", ErrInvalidToken)
	}
	return address, nil
}

// SignCallerToken issues a token for address valid from issuedAt.
func SignCallerToken(address, secret string, issuedAt time.Time) string {
	vals := url.Values{}
	vals.Set("address", address)
	vals.Set("auth_date", strconv.FormatInt(issuedAt.Unix(), 10))
	vals.Set("hash", sign(vals, secret))
	return vals.Encode()
}

func sign(vals url.Values, secret string) string {
	secretKey := hmacSHA256([]byte("CallerData"), []byte(secret))
	return hex.EncodeToString(hmacSHA256(secretKey, []byte(buildDataCheckString(vals))))
}

func buildDataCheckString(vals url.Values) string {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + vals.Get(k)
	}
	return strings.Join(parts, "\n")
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}
