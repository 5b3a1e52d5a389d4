// Package webhook reconciles billing-provider payment notifications with the
// invoice ledger. A delivery is authenticated over its raw bytes before any
// parsing happens.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	// ErrInvalidSignature is returned for every signature failure. It never
	// says whether the header was missing, malformed or wrong.
	ErrInvalidSignature = errors.New("webhook: invalid signature")
	// ErrSecretNotConfigured is a configuration fault, not a caller error.
	ErrSecretNotConfigured = errors.New("webhook: signing secret is not configured")
)

const signaturePrefix = "sha256="

// Verifier checks HMAC-SHA256 signatures over raw webhook bodies.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify compares the hex signature against the HMAC of body in constant
// time. A "sha256=" prefix on the signature is accepted.
func (v *Verifier) Verify(body []byte, signature string) error {
	if v == nil || len(v.secret) == 0 {
		return ErrSecretNotConfigured
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), signaturePrefix)
	given, err := hex.DecodeString(signature)
	if err != nil || len(given) != sha256.Size {
		return ErrInvalidSignature
	}
	if !hmac.Equal(given, v.mac(body)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the hex signature the provider would send for body.
func (v *Verifier) Sign(body []byte) string {
	return hex.EncodeToString(v.mac(body))
}

func (v *Verifier) mac(body []byte) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write(body)
	return h.Sum(nil)
}
