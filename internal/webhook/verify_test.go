package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test-channel-secret"
	body := []byte(`{"events":[{"type":"message"}]}`)

	valid := sign(body, secret)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{"valid", body, valid, secret, true},
		{"wrong secret", body, valid, "other-secret", false},
		{"tampered body", []byte(`{"events":[{"type":"message"} ]}`), valid, secret, false},
		{"empty signature", body, "", secret, false},
		{"garbage signature", body, "bm90LWEtc2lnbmF0dXJl", secret, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.payload, tt.signature, tt.secret); got != tt.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySignature_Deterministic(t *testing.T) {
	body := []byte("fixed body")
	if sign(body, "s") != sign(body, "s") {
		t.Fatal("signature should be deterministic for a fixed secret and body")
	}

	// Any single-byte mutation invalidates a previously valid signature.
	valid := sign(body, "s")
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		if VerifySignature(mutated, valid, "s") {
			t.Fatalf("mutation at byte %d should invalidate the signature", i)
		}
	}
}

func TestValidateSignatureHeader(t *testing.T) {
	if err := ValidateSignatureHeader(""); err == nil {
		t.Fatal("empty header should be rejected")
	}
	if err := ValidateSignatureHeader("abc"); err != nil {
		t.Fatalf("non-empty header should pass, got %v", err)
	}
}
