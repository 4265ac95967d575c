// Package signature verifies Lemon Squeezy webhook signatures. The provider
// signs the raw request body with HMAC-SHA256 using the shared webhook secret
// and sends the hex digest in the x-signature header.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Verify checks header against the HMAC-SHA256 hex digest of body. It must be
// given the exact raw bytes of the request; a re-serialized body may differ
// from what the provider signed. Missing secret or header fails closed
// without computing a hash.
func Verify(secret, body []byte, header string) bool {
	if len(secret) == 0 || header == "" {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(header))
}
