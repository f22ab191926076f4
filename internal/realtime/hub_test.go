package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

func rechargeEvent(rail string, accountID int64) *Event {
	return &Event{
		Type:      EventRecharge,
		Timestamp: time.Now(),
		Data: &RechargeEvent{
			Rail:       rail,
			RechargeID: "r-1",
			AccountID:  accountID,
			Status:     "APROBADA",
			Amount:     decimal.NewFromInt(50000),
		},
	}
}

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	if !h.shouldSend(client, rechargeEvent("card", 1)) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventPurchase},
	}}

	if h.shouldSend(client, rechargeEvent("card", 1)) {
		t.Error("Should NOT receive recharge events")
	}
	if !h.shouldSend(client, &Event{Type: EventPurchase}) {
		t.Error("Should receive purchase events")
	}
}

func TestShouldSend_RailFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Rails: []string{"crypto"}}}

	if h.shouldSend(client, rechargeEvent("card", 1)) {
		t.Error("Should NOT receive card events")
	}
	if !h.shouldSend(client, rechargeEvent("crypto", 1)) {
		t.Error("Should receive crypto events")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AccountIDs: []int64{7}}}

	if !h.shouldSend(client, rechargeEvent("card", 7)) {
		t.Error("Should match watched account")
	}
	if h.shouldSend(client, rechargeEvent("card", 8)) {
		t.Error("Should NOT match other accounts")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{}}

	if !h.shouldSend(client, rechargeEvent("card", 1)) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_NonRechargeData(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{Rails: []string{"crypto"}}}

	// Rail filter can't apply to non-recharge payloads, so they pass.
	event := &Event{Type: EventPurchase, Data: "string data"}
	if !h.shouldSend(client, event) {
		t.Error("Non-recharge data should pass through rail filter")
	}
}

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_NotifierBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{Rails: []string{"card"}},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.CryptoNotifier().RechargeResolved("rc-1", 3, "completada", decimal.NewFromInt(20000))
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("card-only client should not receive crypto event")
	default:
	}

	h.CardNotifier().RechargeResolved("r-1", 3, "APROBADA", decimal.NewFromInt(50000))

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for card recharge event")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}
