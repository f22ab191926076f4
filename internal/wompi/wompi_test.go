package wompi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"
)

func testGateway() *Gateway {
	return NewGateway(Config{
		PublicKey:       "pub_test_abc123",
		IntegritySecret: "test_integrity_secret",
		WebhookSecret:   "test_events_secret",
		FrontendURL:     "http://localhost:3000",
	})
}

func TestIntegrityToken(t *testing.T) {
	g := testGateway()

	token, err := g.IntegrityToken("REC-0001", 5000000, "COP")
	if err != nil {
		t.Fatalf("integrity token: %v", err)
	}

	sum := sha256.Sum256([]byte("REC-00015000000COPtest_integrity_secret"))
	want := hex.EncodeToString(sum[:])
	if token != want {
		t.Errorf("token = %s, want %s", token, want)
	}

	// Currency defaults to COP, reference is trimmed.
	token2, err := g.IntegrityToken("  REC-0001 ", 5000000, "")
	if err != nil {
		t.Fatalf("integrity token: %v", err)
	}
	if token2 != want {
		t.Errorf("normalized token = %s, want %s", token2, want)
	}

	if _, err := g.IntegrityToken("", 5000000, "COP"); err == nil {
		t.Error("expected error for empty reference")
	}

	bare := NewGateway(Config{PublicKey: "pub_test_x"})
	if _, err := bare.IntegrityToken("REC-0001", 100, "COP"); err != ErrNoIntegritySecret {
		t.Errorf("err = %v, want ErrNoIntegritySecret", err)
	}
}

func TestBuildWidgetConfig(t *testing.T) {
	g := testGateway()

	cfg, err := g.BuildWidgetConfig("REC-0001", 5000000, "", "padre@example.com")
	if err != nil {
		t.Fatalf("widget config: %v", err)
	}
	if cfg.PublicKey != "pub_test_abc123" || cfg.Currency != "COP" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Signature == "" || len(cfg.Signature) != 64 {
		t.Errorf("signature = %q", cfg.Signature)
	}
	if cfg.RedirectURL != "http://localhost:3000/recargas/resultado" {
		t.Errorf("redirect = %q", cfg.RedirectURL)
	}
	if cfg.PaymentDescription != "Recarga de saldo" {
		t.Errorf("description = %q", cfg.PaymentDescription)
	}

	if _, err := g.BuildWidgetConfig("REC-0001", 0, "", ""); err == nil {
		t.Error("expected error for zero amount")
	}
}

// webhookPayload builds a valid signed event the way the gateway sends
// them: properties name the fields covered by the checksum.
func webhookPayload(secret, reference, status string, amountInCents int64, timestamp int64) []byte {
	concatenated := fmt.Sprintf("tx-123%s%d%s%d%s", status, amountInCents, reference, timestamp, secret)
	sum := sha256.Sum256([]byte(concatenated))
	checksum := hex.EncodeToString(sum[:])

	return []byte(fmt.Sprintf(`{
		"event": "transaction.updated",
		"timestamp": %d,
		"data": {
			"transaction": {
				"id": "tx-123",
				"reference": %q,
				"status": %q,
				"amount_in_cents": %d
			}
		},
		"signature": {
			"properties": ["transaction.id", "transaction.status", "transaction.amount_in_cents", "transaction.reference"],
			"checksum": %q
		}
	}`, timestamp, reference, status, amountInCents, checksum))
}

func TestVerifyWebhookSignature(t *testing.T) {
	g := testGateway()
	payload := webhookPayload("test_events_secret", "REC-0001", "APPROVED", 5000000, 1700000000)

	if !g.VerifyWebhookSignature(payload, "", "") {
		t.Error("valid body checksum rejected")
	}

	// Header checksum takes precedence over the body one.
	concatenated := "tx-123APPROVED5000000REC-00011700000000test_events_secret"
	sum := sha256.Sum256([]byte(concatenated))
	if !g.VerifyWebhookSignature(payload, hex.EncodeToString(sum[:]), "") {
		t.Error("valid header checksum rejected")
	}

	if g.VerifyWebhookSignature(payload, "deadbeef", "") {
		t.Error("wrong header checksum accepted")
	}
}

func TestVerifyWebhookSignatureFailsClosed(t *testing.T) {
	g := testGateway()

	if g.VerifyWebhookSignature([]byte("not json"), "", "") {
		t.Error("malformed payload accepted")
	}
	if g.VerifyWebhookSignature([]byte(`{"event":"transaction.updated"}`), "", "") {
		t.Error("payload without signature accepted")
	}

	// Tampered amount invalidates the checksum.
	payload := webhookPayload("test_events_secret", "REC-0001", "APPROVED", 5000000, 1700000000)
	tampered := []byte(strings.Replace(string(payload), `"amount_in_cents": 5000000`, `"amount_in_cents": 9000000`, 1))
	if g.VerifyWebhookSignature(tampered, "", "") {
		t.Error("tampered payload accepted")
	}

	// Wrong secret on our side.
	other := NewGateway(Config{WebhookSecret: "another_secret"})
	if other.VerifyWebhookSignature(payload, "", "") {
		t.Error("payload signed with different secret accepted")
	}

	// No secret configured at all.
	bare := NewGateway(Config{})
	if bare.VerifyWebhookSignature(payload, "", "") {
		t.Error("verification passed without a webhook secret")
	}
}

func TestParseEvent(t *testing.T) {
	payload := webhookPayload("test_events_secret", "REC-0001", "APPROVED", 5000000, 1700000000)

	ev, err := ParseEvent(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ev.Type != "transaction.updated" {
		t.Errorf("type = %q", ev.Type)
	}
	if ev.Transaction.Reference != "REC-0001" || ev.Transaction.Status != "APPROVED" {
		t.Errorf("transaction = %+v", ev.Transaction)
	}
	if ev.Transaction.AmountInCents != 5000000 {
		t.Errorf("amount = %d", ev.Transaction.AmountInCents)
	}

	// Flat data object without the transaction wrapper.
	flat := []byte(`{"event":"transaction.updated","timestamp":1,"data":{"id":"tx-9","reference":"REC-2","status":"DECLINED","amount_in_cents":100}}`)
	ev, err = ParseEvent(flat)
	if err != nil {
		t.Fatalf("parse flat: %v", err)
	}
	if ev.Transaction.Reference != "REC-2" {
		t.Errorf("flat transaction = %+v", ev.Transaction)
	}

	// Unknown event types parse but carry no transaction.
	other := []byte(`{"event":"payment_link.updated","data":{"id":"pl-1"}}`)
	ev, err = ParseEvent(other)
	if err != nil {
		t.Fatalf("parse other: %v", err)
	}
	if ev.Type != "payment_link.updated" || ev.Transaction.ID != "" {
		t.Errorf("other event = %+v", ev)
	}

	if _, err := ParseEvent([]byte("{}")); err == nil {
		t.Error("expected error for missing event type")
	}
	if _, err := ParseEvent([]byte("garbage")); err == nil {
		t.Error("expected error for bad JSON")
	}
}

func TestMapStatus(t *testing.T) {
	g := testGateway()

	tests := []struct {
		status string
		want   Outcome
	}{
		{"APPROVED", OutcomeApproved},
		{"approved", OutcomeApproved},
		{"DECLINED", OutcomeDeclined},
		{"ERROR", OutcomeDeclined},
		{"VOIDED", OutcomeVoided},
		{"PENDING", OutcomePending},
		{"SOMETHING_NEW", OutcomeUnrecognized},
		{"", OutcomeUnrecognized},
	}
	for _, tt := range tests {
		if got := g.MapStatus(tt.status); got != tt.want {
			t.Errorf("MapStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}

	// A custom vocabulary overrides the defaults.
	custom := NewGateway(Config{
		WebhookSecret: "s",
		StatusMap:     map[string]Outcome{"OK": OutcomeApproved},
	})
	if custom.MapStatus("OK") != OutcomeApproved {
		t.Error("custom mapping not applied")
	}
	if custom.MapStatus("APPROVED") != OutcomeUnrecognized {
		t.Error("default leaked into custom vocabulary")
	}
}

func TestIsFinal(t *testing.T) {
	for _, status := range []string{"APPROVED", "DECLINED", "VOIDED"} {
		if !IsFinal(status) {
			t.Errorf("IsFinal(%s) = false", status)
		}
	}
	for _, status := range []string{"PENDING", "ERROR", ""} {
		if IsFinal(status) {
			t.Errorf("IsFinal(%s) = true", status)
		}
	}
}
