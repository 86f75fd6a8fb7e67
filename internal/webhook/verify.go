package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// VerifySignature verifies the LINE webhook signature
// using HMAC SHA-256 and constant-time comparison.
// The signature header carries the base64 digest of the raw request body.
func VerifySignature(payload []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(signature), []byte(expected))
}

// ValidateSignatureHeader validates the X-Line-Signature header
func ValidateSignatureHeader(header string) error {
	if header == "" {
		return fmt.Errorf("missing X-Line-Signature header")
	}
	return nil
}
