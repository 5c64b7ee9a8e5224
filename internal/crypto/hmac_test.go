package crypto

import "testing"

func TestWebhookHeadersDeterministic(t *testing.T) {
	w := &WebhookSigner{Secret: "s3cret"}

	h1 := w.HeadersAt("POST", "/hook", `{"event":"bond_settled"}`, 1700000000)
	h2 := w.HeadersAt("POST", "/hook", `{"event":"bond_settled"}`, 1700000000)
	if h1["X-Ledger-Signature"] != h2["X-Ledger-Signature"] {
		t.Error("same inputs produced different signatures")
	}
	if h1["X-Ledger-Timestamp"] != "1700000000" {
		t.Errorf("timestamp header = %q", h1["X-Ledger-Timestamp"])
	}
}

func TestWebhookVerify(t *testing.T) {
	w := &WebhookSigner{Secret: "s3cret"}
	body := `{"event":"bond_issued","bond_id":7}`
	h := w.HeadersAt("POST", "/hook", body, 1700000000)

	if !w.Verify("POST", "/hook", body, h["X-Ledger-Timestamp"], h["X-Ledger-Signature"]) {
		t.Error("valid signature rejected")
	}
	if w.Verify("POST", "/hook", body+" ", h["X-Ledger-Timestamp"], h["X-Ledger-Signature"]) {
		t.Error("tampered body accepted")
	}
	if (&WebhookSigner{Secret: "other"}).Verify("POST", "/hook", body, h["X-Ledger-Timestamp"], h["X-Ledger-Signature"]) {
		t.Error("wrong secret accepted")
	}
}

func TestKeyEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if got != testKeyHex {
		t.Errorf("decrypted key = %s, want %s", got, testKeyHex)
	}

	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
}
