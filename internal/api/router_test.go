package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smartqr/internal/api/handlers"
	"smartqr/internal/api/middleware"
	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/engine/redirect"
	"smartqr/internal/engine/scancontext"
	"smartqr/internal/engine/scans"
	"smartqr/internal/engine/smartqr"
	"smartqr/internal/pkg/geoip"
	"smartqr/internal/platform/audit"
	"smartqr/internal/platform/auth"
	"smartqr/internal/platform/config"
	"smartqr/internal/platform/database"
	"smartqr/internal/platform/metrics"
)

const (
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type usResolver struct{}

func (usResolver) Lookup(ctx context.Context, ip string) (*geoip.Location, error) {
	return &geoip.Location{CountryCode: "US", Region: "TX", City: "Austin", TimeZone: "America/Chicago"}, nil
}

type testServer struct {
	router   http.Handler
	recorder *scans.Recorder
	audit    *audit.Logger
	tokens   *auth.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{Path: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := database.Migrate(context.Background(), db, "../../migrations"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	service := qrcodes.NewService(qrcodes.NewRepository(db))
	scanRepo := scans.NewRepository(db)
	recorder := scans.NewRecorder(scanRepo)

	cache, err := redirect.NewQRCodeCache(config.CacheConfig{QRCodeTTL: time.Minute, MaxEntries: 100})
	if err != nil {
		t.Fatalf("Failed to create cache: %v", err)
	}
	t.Cleanup(cache.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	extractor := scancontext.NewExtractor(usResolver{}, scancontext.Options{LookupTimeout: time.Second, DefaultLocale: "en"})
	redirectHandler := handlers.NewRedirectHandler(service, extractor, protection.NewValidator(scanRepo), smartqr.NewEngine(extractor, nil, nil))
	redirectHandler.Cache = cache
	redirectHandler.Recorder = recorder
	redirectHandler.Metrics = m

	tokens := auth.NewTokenService(config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour})

	auditLogger := audit.NewLogger(db)
	qrHandler := handlers.NewQRCodeHandler(service, scanRepo, extractor, cache)
	qrHandler.Audit = auditLogger
	qrHandler.ShortDomain = "qr.example.com"

	router := NewRouter(&Dependencies{
		RedirectHandler: redirectHandler,
		QRCodeHandler:   qrHandler,
		AuditHandler:    handlers.NewAuditHandler(auditLogger),
		HealthHandler:   handlers.NewHealthHandler(db, nil),
		MetricsHandler:  handlers.NewMetricsHandler(metrics.Handler(reg)),
		AuthMiddleware:  middleware.NewAuthMiddleware(tokens),
	})

	return &testServer{router: router, recorder: recorder, audit: auditLogger, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.10:40000"
	if user != "" {
		token, err := s.tokens.GenerateAccessToken(user, "")
		if err != nil {
			t.Fatalf("Failed to mint token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func createBody() map[string]interface{} {
	return map[string]interface{}{
		"name":     "Menu",
		"password": "secret",
		"config": map[string]interface{}{
			"defaultUrl": "https://example.com/default",
			"rules": []map[string]interface{}{{
				"id":       "mobile",
				"name":     "Mobile users",
				"priority": 10,
				"enabled":  true,
				"conditions": []map[string]interface{}{
					{"type": "device", "operator": "equals", "value": "mobile"},
				},
				"action": map[string]interface{}{"type": "redirect", "value": "https://m.example.com/"},
			}},
		},
	}
}

func TestRouter_ScanLifecycle(t *testing.T) {
	s := newTestServer(t)

	if rr := s.do(t, "POST", "/api/v1/qrcodes", "", createBody(), nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without token, got %d", rr.Code)
	}

	rr := s.do(t, "POST", "/api/v1/qrcodes", "owner", createBody(), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created qrcodes.QRCode
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("Failed to decode QR code: %v", err)
	}
	if created.ShortCode == "" || created.Protection == nil || created.Protection.Password == nil {
		t.Fatalf("Expected short code and password protection, got %+v", created)
	}
	if created.Protection.Password.Hash != "" {
		t.Error("Expected password hash to be redacted")
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte(`"scan_url":"https://qr.example.com/q/`)) {
		t.Error("Expected scan_url in response")
	}

	scanPath := "/q/" + created.ShortCode

	rr = s.do(t, "GET", scanPath, "", nil, map[string]string{"User-Agent": iphoneUA})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 when password missing, got %d", rr.Code)
	}
	var denial map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&denial)
	if denial["allowed"] != false || denial["requiresPassword"] != true || denial["reason"] != "Password required" {
		t.Errorf("Unexpected denial body %v", denial)
	}

	rr = s.do(t, "GET", scanPath+"?password=wrong", "", nil, map[string]string{"User-Agent": iphoneUA})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 for wrong password, got %d", rr.Code)
	}

	rr = s.do(t, "GET", scanPath+"?password=secret", "", nil, map[string]string{"User-Agent": iphoneUA})
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "https://m.example.com/" {
		t.Fatalf("Expected mobile redirect, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	rr = s.do(t, "GET", scanPath, "", nil, map[string]string{"User-Agent": desktopUA, "X-QR-Password": "secret"})
	if rr.Code != http.StatusFound || rr.Header().Get("Location") != "https://example.com/default" {
		t.Fatalf("Expected default redirect, got %d %q", rr.Code, rr.Header().Get("Location"))
	}

	s.recorder.Wait()

	rr = s.do(t, "GET", "/api/v1/qrcodes/"+created.ID+"/stats", "owner", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for stats, got %d", rr.Code)
	}
	var stats scans.Stats
	json.NewDecoder(rr.Body).Decode(&stats)
	if stats.Total != 4 || stats.Allowed != 2 || stats.Denied != 2 {
		t.Errorf("Unexpected stats %+v", stats)
	}

	rr = s.do(t, "POST", "/api/v1/qrcodes/"+created.ID+"/preview", "owner", map[string]string{"user_agent": iphoneUA}, nil)
	var preview map[string]interface{}
	json.NewDecoder(rr.Body).Decode(&preview)
	if rr.Code != http.StatusOK || preview["matched"] != true || preview["rule_id"] != "mobile" {
		t.Errorf("Unexpected preview %d %v", rr.Code, preview)
	}

	if rr := s.do(t, "GET", "/api/v1/qrcodes/"+created.ID, "intruder", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another user's QR code, got %d", rr.Code)
	}

	rr = s.do(t, "PATCH", "/api/v1/qrcodes/"+created.ID, "owner", map[string]string{"status": "paused"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 for update, got %d: %s", rr.Code, rr.Body.String())
	}

	if rr := s.do(t, "GET", scanPath+"?password=secret", "", nil, nil); rr.Code != http.StatusGone {
		t.Errorf("Expected 410 for paused code, got %d", rr.Code)
	}

	if rr := s.do(t, "DELETE", "/api/v1/qrcodes/"+created.ID, "owner", nil, nil); rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for delete, got %d", rr.Code)
	}

	s.audit.Wait()
	rr = s.do(t, "GET", "/api/v1/audit", "owner", nil, nil)
	var entries []audit.Entry
	json.NewDecoder(rr.Body).Decode(&entries)
	if rr.Code != http.StatusOK || len(entries) != 3 {
		t.Fatalf("Expected 3 audit entries, got %d %d", rr.Code, len(entries))
	}
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e.Action] = true
	}
	if !actions[audit.ActionQRCodeCreate] || !actions[audit.ActionQRCodeUpdate] || !actions[audit.ActionQRCodeArchive] {
		t.Errorf("Unexpected audit actions %v", actions)
	}
}

func TestRouter_CreateRejectsInvalidConfig(t *testing.T) {
	s := newTestServer(t)

	body := map[string]interface{}{
		"name": "Broken",
		"config": map[string]interface{}{
			"defaultUrl": "ftp://example.com",
			"rules": []map[string]interface{}{{
				"id":         "r1",
				"enabled":    true,
				"conditions": []map[string]interface{}{{"type": "device", "operator": "between", "value": []int{1, 2}}},
				"action":     map[string]interface{}{"type": "redirect", "value": "https://example.com"},
			}},
		},
	}

	rr := s.do(t, "POST", "/api/v1/qrcodes", "owner", body, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rr.Code)
	}
	var resp struct {
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Code != "INVALID_CONFIG" || len(resp.Details) != 2 {
		t.Errorf("Unexpected error response %+v", resp)
	}
}

func TestRouter_UnknownShortCode(t *testing.T) {
	s := newTestServer(t)

	if rr := s.do(t, "GET", "/q/nope123", "", nil, nil); rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, "GET", "/health", "", nil, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected healthy status, got %d: %s", rr.Code, rr.Body.String())
	}

	s.do(t, "GET", "/q/missing1", "", nil, nil)
	rr = s.do(t, "GET", "/metrics", "", nil, nil)
	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte("smartqr_cache_lookups_total")) {
		t.Errorf("Expected smartqr metrics in exposition, got %d", rr.Code)
	}
}
