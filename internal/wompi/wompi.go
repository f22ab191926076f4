// Package wompi integrates with the Wompi card payment gateway.
//
// The flow is widget-based: the backend prepares a widget configuration
// carrying an integrity signature, the frontend opens the Wompi widget,
// and Wompi later notifies the outcome through a signed webhook. No
// private-key API calls are made from here.
package wompi

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoIntegritySecret = errors.New("integrity secret not configured")
	ErrInvalidEvent      = errors.New("invalid webhook event")
)

// Final transaction statuses reported by Wompi.
const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusVoided   = "VOIDED"
	StatusError    = "ERROR"
	StatusPending  = "PENDING"
)

// Outcome is the internal interpretation of a gateway status.
type Outcome string

const (
	OutcomeApproved     Outcome = "approved"
	OutcomeDeclined     Outcome = "declined"
	OutcomeVoided       Outcome = "voided"
	OutcomePending      Outcome = "pending"
	OutcomeUnrecognized Outcome = "unrecognized"
)

// DefaultStatusMap translates Wompi statuses to internal outcomes.
// Deployments facing a gateway vocabulary change can override it via
// Config.StatusMap without touching the state machine.
var DefaultStatusMap = map[string]Outcome{
	StatusApproved: OutcomeApproved,
	StatusDeclined: OutcomeDeclined,
	StatusError:    OutcomeDeclined,
	StatusVoided:   OutcomeVoided,
	StatusPending:  OutcomePending,
}

// Config holds the gateway credentials.
type Config struct {
	PublicKey       string
	IntegritySecret string
	WebhookSecret   string
	FrontendURL     string
	StatusMap       map[string]Outcome
}

// Gateway prepares widget configurations and verifies webhooks.
type Gateway struct {
	cfg Config
}

// NewGateway creates a gateway from the given credentials.
func NewGateway(cfg Config) *Gateway {
	if cfg.StatusMap == nil {
		cfg.StatusMap = DefaultStatusMap
	}
	return &Gateway{cfg: cfg}
}

// Enabled reports whether the widget can be offered.
func (g *Gateway) Enabled() bool {
	return g.cfg.PublicKey != "" && g.cfg.IntegritySecret != ""
}

// MapStatus translates a gateway status to an internal outcome.
// Unknown statuses map to OutcomeUnrecognized, never to a terminal one.
func (g *Gateway) MapStatus(status string) Outcome {
	if out, ok := g.cfg.StatusMap[strings.ToUpper(strings.TrimSpace(status))]; ok {
		return out
	}
	return OutcomeUnrecognized
}

// IntegrityToken computes the widget integrity signature:
// SHA-256(reference + amountInCents + currency + integritySecret),
// lower-case hex.
func (g *Gateway) IntegrityToken(reference string, amountInCents int64, currency string) (string, error) {
	if g.cfg.IntegritySecret == "" {
		return "", ErrNoIntegritySecret
	}
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", fmt.Errorf("reference is required")
	}
	if currency == "" {
		currency = "COP"
	}
	msg := fmt.Sprintf("%s%d%s%s", reference, amountInCents, strings.ToUpper(currency), g.cfg.IntegritySecret)
	sum := sha256.Sum256([]byte(msg))
	return hex.EncodeToString(sum[:]), nil
}

// WidgetConfig is everything the frontend needs to open the payment
// widget. Field names follow the widget's own schema.
type WidgetConfig struct {
	PublicKey          string `json:"public_key"`
	Currency           string `json:"currency"`
	AmountInCents      int64  `json:"amount_in_cents"`
	Reference          string `json:"reference"`
	Signature          string `json:"signature"`
	RedirectURL        string `json:"redirect_url"`
	PaymentDescription string `json:"payment_description"`
	CustomerEmail      string `json:"customer_email,omitempty"`
}

// BuildWidgetConfig assembles the widget configuration for one payment.
func (g *Gateway) BuildWidgetConfig(reference string, amountInCents int64, description, customerEmail string) (*WidgetConfig, error) {
	if !g.Enabled() {
		return nil, fmt.Errorf("card gateway is not configured")
	}
	if amountInCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	signature, err := g.IntegrityToken(reference, amountInCents, "COP")
	if err != nil {
		return nil, err
	}
	if description == "" {
		description = "Recarga de saldo"
	}

	return &WidgetConfig{
		PublicKey:          g.cfg.PublicKey,
		Currency:           "COP",
		AmountInCents:      amountInCents,
		Reference:          strings.TrimSpace(reference),
		Signature:          signature,
		RedirectURL:        g.cfg.FrontendURL + "/recargas/resultado",
		PaymentDescription: description,
		CustomerEmail:      customerEmail,
	}, nil
}

// Event is a parsed webhook notification.
type Event struct {
	Type        string
	Transaction Transaction
	Timestamp   json.Number
}

// Transaction is the payment the event reports on.
type Transaction struct {
	ID            string `json:"id"`
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	AmountInCents int64  `json:"amount_in_cents"`
	CustomerEmail string `json:"customer_email"`
	FinalizedAt   string `json:"finalized_at"`
	PaymentMethod struct {
		Type string `json:"type"`
	} `json:"payment_method"`
}

type rawEvent struct {
	Event     string          `json:"event"`
	Timestamp json.Number     `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	Signature struct {
		Properties []string `json:"properties"`
		Checksum   string   `json:"checksum"`
	} `json:"signature"`
}

// ParseEvent decodes a webhook payload. Only transaction.updated events
// carry a transaction; other event types come back with just the type
// set so callers can acknowledge and ignore them.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if raw.Event == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrInvalidEvent)
	}

	ev := &Event{Type: raw.Event, Timestamp: raw.Timestamp}
	if raw.Event != "transaction.updated" || len(raw.Data) == 0 {
		return ev, nil
	}

	// The transaction may arrive nested under data.transaction or as
	// the data object itself.
	var wrapper struct {
		Transaction *Transaction `json:"transaction"`
	}
	if err := json.Unmarshal(raw.Data, &wrapper); err == nil && wrapper.Transaction != nil {
		ev.Transaction = *wrapper.Transaction
		return ev, nil
	}
	if err := json.Unmarshal(raw.Data, &ev.Transaction); err != nil {
		return nil, fmt.Errorf("%w: bad transaction data: %v", ErrInvalidEvent, err)
	}
	return ev, nil
}

// IsFinal reports whether a gateway status is terminal.
func IsFinal(status string) bool {
	switch strings.ToUpper(status) {
	case StatusApproved, StatusDeclined, StatusVoided:
		return true
	}
	return false
}

// VerifyWebhookSignature checks a webhook's authenticity.
//
// The expected checksum is SHA-256 over the concatenation of the values
// named by signature.properties (dotted paths resolved against data
// first, then the event root), followed by the root-level timestamp and
// the webhook secret. The received checksum comes from the header when
// present, otherwise from the body. Any structural anomaly fails closed.
func (g *Gateway) VerifyWebhookSignature(payload []byte, headerChecksum, headerTimestamp string) bool {
	if g.cfg.WebhookSecret == "" {
		return false
	}

	var event map[string]interface{}
	if err := json.Unmarshal(payload, &event); err != nil {
		return false
	}

	timestamp := stringify(event["timestamp"])
	if timestamp == "" {
		timestamp = headerTimestamp
	}
	if timestamp == "" {
		return false
	}

	var properties []string
	var bodyChecksum string
	if sig, ok := event["signature"].(map[string]interface{}); ok {
		if props, ok := sig["properties"].([]interface{}); ok {
			for _, p := range props {
				if s, ok := p.(string); ok {
					properties = append(properties, s)
				}
			}
		}
		bodyChecksum = stringify(sig["checksum"])
	}

	expected := headerChecksum
	if expected == "" {
		expected = bodyChecksum
	}
	if expected == "" {
		return false
	}

	dataRoot, _ := event["data"].(map[string]interface{})

	var concatenated strings.Builder
	for _, prop := range properties {
		value := resolvePath(dataRoot, prop)
		if value == nil {
			value = resolvePath(event, prop)
		}
		concatenated.WriteString(stringify(value))
	}
	concatenated.WriteString(timestamp)
	concatenated.WriteString(g.cfg.WebhookSecret)

	sum := sha256.Sum256([]byte(concatenated.String()))
	calculated := hex.EncodeToString(sum[:])

	return subtle.ConstantTimeCompare([]byte(calculated), []byte(strings.ToLower(expected))) == 1
}

// resolvePath walks a dotted path through nested JSON objects.
func resolvePath(root map[string]interface{}, path string) interface{} {
	var current interface{} = root
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = obj[part]
	}
	return current
}

// stringify renders a JSON value the way the checksum expects:
// numbers without a trailing ".0" when integral, nil as empty.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	case bool:
		return fmt.Sprintf("%v", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
