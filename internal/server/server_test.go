package server

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gin-gonic/gin"

	"github.com/foodcash/foodcash/internal/celo"
	"github.com/foodcash/foodcash/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubReader implements celo.ChainReader without touching the network.
type stubReader struct{}

func (stubReader) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (stubReader) BlockNumber(ctx context.Context) (uint64, error) {
	return 1000, nil
}

func (stubReader) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(42220), nil
}

func (stubReader) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return make([]byte, 32), nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		JWTSecret:       "test-secret",
		FrontendURL:     "http://localhost:3000",
		CCOPContract:    config.DefaultCCOPContract,
		ReceivingAddr:   "0x1111111111111111111111111111111111111111",
		TokenDecimals:   18,
		CryptoTTLMin:    30,
		ChainTimeoutSec: 15,
		CardMinAmount:   "10000",
		CardMaxAmount:   "1000000",
		CryptoMinAmount: "1000",
		CryptoMaxAmount: "5000000",
		RateLimitRPM:    600,
	}
}

// newTestServer creates a server with in-memory stores and a stubbed chain
func newTestServer(t *testing.T) *Server {
	t.Helper()
	chain := celo.NewClientWithReader(stubReader{}, celo.Config{
		TokenContract:    common.HexToAddress(config.DefaultCCOPContract),
		ReceivingAddress: common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}, nil)
	s, err := New(testConfig(), WithChainClient(chain))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"POST:/api/auth/register",
		"POST:/api/auth/login",
		"GET:/api/auth/me",
		"POST:/api/webhooks/wompi",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

func TestRechargeRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := map[string]bool{
		"POST:/api/recargas":                     false,
		"GET:/api/recargas/:id/widget":           false,
		"POST:/api/recargas/:id/cancelar":        false,
		"GET:/api/recargas-crypto/configuracion": false,
		"POST:/api/recargas-crypto/crear":        false,
		"POST:/api/recargas-crypto/confirmar":    false,
		"GET:/api/recargas-crypto/estado/:id":    false,
	}

	for _, route := range routes {
		key := route.Method + ":" + route.Path
		if _, ok := expected[key]; ok {
			expected[key] = true
		}
	}

	for route, found := range expected {
		if !found {
			t.Errorf("Recharge route %s not registered", route)
		}
	}
}

// ---------------------------------------------------------------------------
// Auth flow tests
// ---------------------------------------------------------------------------

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t)

	body := `{"username":"padre1","password":"segura123"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on login, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	token, _ := resp["access_token"].(string)
	if token == "" {
		t.Fatal("Expected access_token in login response")
	}

	// Token works on a protected route
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on /auth/me, got %d: %s", w.Code, w.Body.String())
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/auth/me", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestAdminRouteForbiddenForGuardian(t *testing.T) {
	s := newTestServer(t)

	body := `{"username":"padre2","password":"segura123"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/auth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("register failed: %d", w.Code)
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse login response: %v", err)
	}
	token := resp["access_token"].(string)

	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/estudiantes", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for guardian on admin route, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Crypto config endpoint
// ---------------------------------------------------------------------------

func TestCryptoConfigEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/recargas-crypto/configuracion", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
