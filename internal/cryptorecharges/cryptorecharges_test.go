package cryptorecharges

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/foodcash/foodcash/internal/auth"
	"github.com/foodcash/foodcash/internal/celo"
)

const (
	testDestination = "0x1111111111111111111111111111111111111111"
	testWallet      = "0x2222222222222222222222222222222222222222"
)

var testTxHash = "0x" + strings.Repeat("ab", 32)

// fakeChain scripts verification outcomes per call.
type fakeChain struct {
	mu        sync.Mutex
	connected bool
	results   []*celo.Verification
	calls     int
}

func (f *fakeChain) Connected(ctx context.Context) bool { return f.connected }

func (f *fakeChain) VerifyPayment(ctx context.Context, txHash string, expected, tolerance decimal.Decimal) *celo.Verification {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.results) == 0 {
		return &celo.Verification{Outcome: celo.OutcomeUnavailable, Message: "no scripted result"}
	}
	v := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return v
}

func (f *fakeChain) Network(ctx context.Context) celo.NetworkInfo {
	return celo.NetworkInfo{
		Connected:        f.connected,
		ChainID:          42220,
		TokenContract:    celo.DefaultTokenContract,
		ReceivingAddress: testDestination,
	}
}

// creditRecorder wraps the account service to count and optionally
// fail credit calls.
type creditRecorder struct {
	*auth.Service
	mu      sync.Mutex
	credits int
	failN   int
}

func (c *creditRecorder) Credit(ctx context.Context, id int64, amount decimal.Decimal) (decimal.Decimal, error) {
	c.mu.Lock()
	if c.failN > 0 {
		c.failN--
		c.mu.Unlock()
		return decimal.Zero, errors.New("balance store unavailable")
	}
	c.credits++
	c.mu.Unlock()
	return c.Service.Credit(ctx, id, amount)
}

type fixture struct {
	svc      *Service
	chain    *fakeChain
	recorder *creditRecorder
	users    *auth.Service
	userID   int64
}

func verified(amount decimal.Decimal) *celo.Verification {
	return &celo.Verification{
		Outcome: celo.OutcomeVerified,
		Details: &celo.TransferDetails{
			From:        testWallet,
			To:          testDestination,
			Amount:      amount,
			BlockNumber: 4321,
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newStoreFixture(t, NewMemoryStore())
}

func newStoreFixture(t *testing.T, store Store) *fixture {
	t.Helper()
	users := auth.NewService(auth.NewMemoryStore(), "test-secret")
	user, err := users.Register(context.Background(), "padre1", "secret1", auth.RoleGuardian)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	recorder := &creditRecorder{Service: users}
	chain := &fakeChain{connected: true}
	svc := NewService(store, chain, recorder, nil, DefaultConfig(testDestination), nil)
	return &fixture{svc: svc, chain: chain, recorder: recorder, users: users, userID: user.ID}
}

// racingStore completes the recharge out of band right before the first
// conditional write, like a second replica finishing verification and
// credit between this process's read and its update.
type racingStore struct {
	Store
	once sync.Once
}

func (rs *racingStore) Update(ctx context.Context, r *CryptoRecharge, from Status) error {
	rs.once.Do(func() {
		other, err := rs.Store.Get(ctx, r.ID)
		if err != nil {
			return
		}
		prev := other.Status
		other.Status = StatusCompleted
		other.Message = "Recarga completada. Saldo acreditado exitosamente."
		_ = rs.Store.Update(ctx, other, prev)
	})
	return rs.Store.Update(ctx, r, from)
}

func (f *fixture) pending(t *testing.T, amount int64) *CryptoRecharge {
	t.Helper()
	r, err := f.svc.CreatePending(context.Background(), f.userID, decimal.NewFromInt(amount), AssetCCOP)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	return r
}

func (f *fixture) balance(t *testing.T) decimal.Decimal {
	t.Helper()
	u, err := f.users.Get(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	return u.Balance
}

func TestCreatePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.pending(t, 50000)
	if r.Status != StatusPending {
		t.Errorf("status = %s, want pendiente", r.Status)
	}
	if !r.AmountCrypto.Equal(r.AmountCOP) {
		t.Errorf("cCOP amount %s != COP amount %s", r.AmountCrypto, r.AmountCOP)
	}
	if !r.ConversionRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("conversion rate = %s, want 1", r.ConversionRate)
	}
	if r.Destination != testDestination {
		t.Errorf("destination = %s", r.Destination)
	}
	if !strings.HasPrefix(r.ID, "REC_CRYPTO_") {
		t.Errorf("id = %s", r.ID)
	}

	if _, err := f.svc.CreatePending(ctx, f.userID, decimal.NewFromInt(999), AssetCCOP); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("below minimum err = %v", err)
	}
	if _, err := f.svc.CreatePending(ctx, f.userID, decimal.NewFromInt(5000001), AssetCCOP); !errors.Is(err, ErrAmountOutOfRange) {
		t.Errorf("above maximum err = %v", err)
	}
	if _, err := f.svc.CreatePending(ctx, f.userID, decimal.NewFromInt(50000), AssetCUSD); !errors.Is(err, ErrUnsupportedAsset) {
		t.Errorf("cUSD err = %v", err)
	}
	if _, err := f.svc.CreatePending(ctx, 9999, decimal.NewFromInt(50000), AssetCCOP); !errors.Is(err, auth.ErrUserNotFound) {
		t.Errorf("missing user err = %v", err)
	}

	f.chain.connected = false
	if _, err := f.svc.CreatePending(ctx, f.userID, decimal.NewFromInt(50000), AssetCCOP); !errors.Is(err, ErrChainUnavailable) {
		t.Errorf("disconnected chain err = %v", err)
	}
}

func TestInstructions(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)

	instructions, err := f.svc.Instructions(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("instructions: %v", err)
	}
	if instructions.Destination != testDestination {
		t.Errorf("destination = %s", instructions.Destination)
	}
	if instructions.RemainingMinutes <= 0 || instructions.RemainingMinutes > 30 {
		t.Errorf("remaining minutes = %d", instructions.RemainingMinutes)
	}
	if len(instructions.Steps) == 0 {
		t.Error("no payment steps")
	}
}

func TestConfirmPaymentSuccess(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{verified(decimal.NewFromInt(50000))}

	got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completada", got.Status)
	}
	if got.BlockNumber != 4321 {
		t.Errorf("block = %d", got.BlockNumber)
	}
	if got.TxHash != testTxHash {
		t.Errorf("tx hash = %s", got.TxHash)
	}
	if !f.balance(t).Equal(decimal.NewFromInt(50000)) {
		t.Errorf("balance = %s, want 50000", f.balance(t))
	}
}

func TestConfirmPaymentReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{verified(decimal.NewFromInt(50000))}

	for i := 0; i < 3; i++ {
		got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
		if err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
		if got.Status != StatusCompleted {
			t.Errorf("confirm %d status = %s", i, got.Status)
		}
	}

	if f.recorder.credits != 1 {
		t.Errorf("credits = %d, want 1", f.recorder.credits)
	}
	if !f.balance(t).Equal(decimal.NewFromInt(50000)) {
		t.Errorf("balance = %s, want 50000", f.balance(t))
	}
}

func TestConfirmPaymentLostRaceDoesNotDoubleCredit(t *testing.T) {
	f := newStoreFixture(t, &racingStore{Store: NewMemoryStore()})
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{verified(decimal.NewFromInt(50000))}

	// The other replica verifies and credits first; this writer's
	// conditional update loses, reports success, and never credits.
	got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completada", got.Status)
	}
	if f.recorder.credits != 0 {
		t.Errorf("credits = %d, want 0 (other writer credited)", f.recorder.credits)
	}
	if f.chain.calls != 0 {
		t.Errorf("chain consulted %d times by the losing writer", f.chain.calls)
	}
}

func TestConfirmPaymentInputValidation(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	ctx := context.Background()

	if _, err := f.svc.ConfirmPayment(ctx, r.ID, "nothex", testWallet); !errors.Is(err, ErrInvalidTxHash) {
		t.Errorf("bad hash err = %v", err)
	}
	if _, err := f.svc.ConfirmPayment(ctx, r.ID, testTxHash, "0x123"); !errors.Is(err, ErrInvalidWalletAddr) {
		t.Errorf("bad wallet err = %v", err)
	}

	got, _ := f.svc.Get(ctx, r.ID)
	if got.Status != StatusPending {
		t.Errorf("status after rejected input = %s, want pendiente", got.Status)
	}
}

func TestConfirmPaymentChainUnavailableIsRetryable(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	ctx := context.Background()
	f.chain.results = []*celo.Verification{
		{Outcome: celo.OutcomeUnavailable, Message: "transaction not found or still pending"},
		verified(decimal.NewFromInt(50000)),
	}

	if _, err := f.svc.ConfirmPayment(ctx, r.ID, testTxHash, testWallet); !errors.Is(err, ErrChainUnavailable) {
		t.Fatalf("first confirm err = %v, want ErrChainUnavailable", err)
	}

	got, _ := f.svc.Get(ctx, r.ID)
	if got.Status != StatusVerifying {
		t.Fatalf("status = %s, want verificando", got.Status)
	}

	got, err := f.svc.ConfirmPayment(ctx, r.ID, testTxHash, testWallet)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("retry status = %s, want completada", got.Status)
	}
	if f.recorder.credits != 1 {
		t.Errorf("credits = %d, want 1", f.recorder.credits)
	}
}

func TestConfirmPaymentRejectedOnChain(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{
		{Outcome: celo.OutcomeRejected, Message: "amount mismatch"},
	}

	got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("err = %v, want ErrVerificationFailed", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rechazada", got.Status)
	}
	if !strings.Contains(got.Message, "amount mismatch") {
		t.Errorf("message = %q", got.Message)
	}
	if !f.balance(t).IsZero() {
		t.Errorf("balance = %s, want 0", f.balance(t))
	}

	// A rejected recharge accepts no further proofs.
	if _, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("confirm after rejection err = %v", err)
	}
}

func TestConfirmPaymentExpired(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }

	got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("err = %v, want ErrExpired", err)
	}
	if got.Status != StatusRejected {
		t.Errorf("status = %s, want rechazada", got.Status)
	}
	if f.chain.calls != 0 {
		t.Errorf("chain consulted %d times for expired recharge", f.chain.calls)
	}
}

func TestConfirmPaymentCreditFailureIsTerminalError(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{verified(decimal.NewFromInt(50000))}
	f.recorder.failN = 1

	got, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet)
	if err == nil {
		t.Fatal("expected error from failed credit")
	}
	if got.Status != StatusError {
		t.Errorf("status = %s, want error", got.Status)
	}

	// ERROR is terminal: the proof cannot be replayed into a credit.
	if _, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet); !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("confirm after error state err = %v", err)
	}
	if !f.balance(t).IsZero() {
		t.Errorf("balance = %s, want 0", f.balance(t))
	}
}

func TestVerificationStatusView(t *testing.T) {
	f := newFixture(t)
	r := f.pending(t, 50000)
	f.chain.results = []*celo.Verification{verified(decimal.NewFromInt(50000))}

	status, err := f.svc.Status(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Verified {
		t.Error("pending recharge reported verified")
	}

	if _, err := f.svc.ConfirmPayment(context.Background(), r.ID, testTxHash, testWallet); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	status, err = f.svc.Status(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Verified || status.Status != StatusCompleted {
		t.Errorf("status = %+v", status)
	}
}

func TestSystemConfig(t *testing.T) {
	f := newFixture(t)

	cfg := f.svc.Config(context.Background())
	if cfg.ServiceStatus != "operativo" {
		t.Errorf("service status = %s", cfg.ServiceStatus)
	}
	if len(cfg.SupportedAssets) != 1 || cfg.SupportedAssets[0] != AssetCCOP {
		t.Errorf("supported assets = %v", cfg.SupportedAssets)
	}
	if cfg.TTLMinutes != 30 {
		t.Errorf("ttl = %d", cfg.TTLMinutes)
	}

	f.chain.connected = false
	if cfg := f.svc.Config(context.Background()); cfg.ServiceStatus != "no_disponible" {
		t.Errorf("disconnected status = %s", cfg.ServiceStatus)
	}
}

func TestListByUser(t *testing.T) {
	f := newFixture(t)
	f.pending(t, 50000)
	f.pending(t, 60000)

	list, err := f.svc.ListByUser(context.Background(), f.userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
}
