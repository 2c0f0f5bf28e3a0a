// Package webhook verifies and decodes inbound source-control deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// SignatureHeader carries the HMAC of the raw request body
const SignatureHeader = "X-Hub-Signature-256"

const signaturePrefix = "sha256="

var (
	// ErrNoSignature is returned when a secret is configured but the request is unsigned
	ErrNoSignature = errors.New("no signature found")
	// ErrInvalidSignature is returned when the signature does not match the body
	ErrInvalidSignature = errors.New("invalid signature")
)

// VerifySignature checks header against HMAC-SHA256(secret, rawBody).
// An empty secret disables verification and accepts every request.
func VerifySignature(secret, rawBody []byte, header string) error {
	if len(secret) == 0 {
		return nil
	}
	if header == "" {
		return ErrNoSignature
	}

	expected := []byte(Sign(secret, rawBody))
	if !hmac.Equal(expected, []byte(header)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the signature header value for body
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
