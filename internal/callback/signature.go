package callback

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
)

// SignatureHeader carries the HMAC of the raw callback body.
const SignatureHeader = "X-Signature-256"

// ErrBadSignature is returned when the signature header is missing or wrong.
var ErrBadSignature = eris.New("callback: invalid signature")

// Sign returns the header value for body under secret: "sha256=<hex>".
func Sign(secret string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks header against the HMAC-SHA256 of body.
func VerifySignature(secret string, body []byte, header string) error {
	got, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok || got == "" {
		return ErrBadSignature
	}
	sig, err := hex.DecodeString(got)
	if err != nil {
		return ErrBadSignature
	}
	want, _ := hex.DecodeString(strings.TrimPrefix(Sign(secret, body), "sha256="))
	if !hmac.Equal(sig, want) {
		return ErrBadSignature
	}
	return nil
}
