package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// WebhookSigner signs outbound webhook deliveries so receivers can verify
// that a notification came from this engine and was not replayed.
type WebhookSigner struct {
	Secret string
}

// Headers returns the HTTP headers for a webhook delivery. The signature is
// HMAC-SHA256(secret, timestamp+method+path+body) encoded as base64.
//
// Returned header keys:
//   - X-Ledger-Timestamp
//   - X-Ledger-Signature
func (w *WebhookSigner) Headers(method, path, body string) map[string]string {
	return w.HeadersAt(method, path, body, time.Now().Unix())
}

// HeadersAt is like Headers but lets the caller supply the Unix timestamp
// (useful for deterministic testing).
func (w *WebhookSigner) HeadersAt(method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)

	message := ts + method + path + body
	sig := hmacSHA256Base64([]byte(w.Secret), message)

	return map[string]string{
		"X-Ledger-Timestamp": ts,
		"X-Ledger-Signature": sig,
	}
}

// Verify checks a delivery signature against the secret. Receivers should
// also reject timestamps outside their tolerance window.
func (w *WebhookSigner) Verify(method, path, body, ts, sig string) bool {
	expected := hmacSHA256Base64([]byte(w.Secret), ts+method+path+body)
	return hmac.Equal([]byte(expected), []byte(sig))
}

// String returns a redacted representation suitable for logging.
func (w *WebhookSigner) String() string {
	s := w.Secret
	if len(s) <= 4 {
		return "WebhookSigner{secret=****}"
	}
	return fmt.Sprintf("WebhookSigner{secret=%s****}", s[:4])
}

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
