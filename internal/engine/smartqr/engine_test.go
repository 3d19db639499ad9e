package smartqr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartqr/internal/engine/scancontext"
	"smartqr/internal/pkg/geoip"
)

const (
	mobileUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type stubCaller struct {
	url     string
	err     error
	payload APICallPayload
	calls   int
}

func (s *stubCaller) Call(ctx context.Context, endpoint string, payload APICallPayload) (string, error) {
	s.calls++
	s.payload = payload
	return s.url, s.err
}

func newTestEngine(caller APICaller) *Engine {
	extractor := scancontext.NewExtractor(geoip.NewNoopResolver(), scancontext.Options{TimeZone: "UTC"})
	return NewEngine(extractor, caller, NewVariantSelector(func() float64 { return 0.5 }))
}

func mobileRule(id string, priority int, target string) Rule {
	return Rule{
		ID:         id,
		Priority:   priority,
		Conditions: []Condition{{Type: ConditionDevice, Operator: OpEquals, Value: StringValue("mobile")}},
		Action:     Action{Type: ActionRedirect, Value: target},
		Enabled:    true,
	}
}

func TestResolve_MobileScenario(t *testing.T) {
	cfg := MultiURLConfig{
		ID:         "cfg1",
		DefaultURL: "https://example.com",
		Rules:      []Rule{mobileRule("r1", 10, "https://m.example.com")},
	}
	engine := newTestEngine(&stubCaller{})

	res := engine.Resolve(context.Background(), cfg, scancontext.RawSignals{UserAgent: mobileUA})
	if res.URL != "https://m.example.com" || res.Fallback || res.RuleID != "r1" {
		t.Errorf("Mobile scan: unexpected resolution %+v", res)
	}

	res = engine.Resolve(context.Background(), cfg, scancontext.RawSignals{UserAgent: desktopUA})
	if res.URL != "https://example.com" || !res.Fallback || res.Err != nil {
		t.Errorf("Desktop scan: unexpected resolution %+v", res)
	}
}

func TestResolveContext_Priority(t *testing.T) {
	sc := scanAt(12)

	tests := []struct {
		name   string
		rules  []Rule
		wantID string
	}{
		{
			name:   "Highest priority wins regardless of order",
			rules:  []Rule{mobileRule("low", 1, "https://low.example.com"), mobileRule("high", 50, "https://high.example.com")},
			wantID: "high",
		},
		{
			name:   "Equal priority keeps list order",
			rules:  []Rule{mobileRule("first", 5, "https://a.example.com"), mobileRule("second", 5, "https://b.example.com")},
			wantID: "first",
		},
		{
			name: "Disabled rules are skipped",
			rules: func() []Rule {
				r := mobileRule("off", 100, "https://off.example.com")
				r.Enabled = false
				return []Rule{r, mobileRule("on", 1, "https://on.example.com")}
			}(),
			wantID: "on",
		},
		{
			name: "Empty condition list always matches",
			rules: []Rule{
				{ID: "catch-all", Priority: 0, Action: Action{Type: ActionRedirect, Value: "https://all.example.com"}, Enabled: true},
			},
			wantID: "catch-all",
		},
		{
			name: "All conditions must hold",
			rules: []Rule{
				{
					ID:       "mobile-gb",
					Priority: 10,
					Conditions: []Condition{
						{Type: ConditionDevice, Operator: OpEquals, Value: StringValue("mobile")},
						{Type: ConditionLocation, Operator: OpEquals, Value: StringValue("GB")},
					},
					Action:  Action{Type: ActionRedirect, Value: "https://gb.example.com"},
					Enabled: true,
				},
				mobileRule("mobile", 1, "https://m.example.com"),
			},
			wantID: "mobile",
		},
	}

	engine := newTestEngine(&stubCaller{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := MultiURLConfig{ID: "cfg", DefaultURL: "https://example.com", Rules: tt.rules}
			res := engine.ResolveContext(context.Background(), cfg, sc)
			if res.RuleID != tt.wantID {
				t.Errorf("Expected rule %s, got %+v", tt.wantID, res)
			}
		})
	}
}

func TestResolveContext_NeverFails(t *testing.T) {
	sc := scanAt(12)
	engine := newTestEngine(&stubCaller{})

	configs := []MultiURLConfig{
		{DefaultURL: "https://example.com"},
		{DefaultURL: "https://example.com", Rules: []Rule{}},
		{DefaultURL: "https://example.com", Rules: []Rule{
			{ID: "bad-op", Conditions: []Condition{{Type: ConditionDevice, Operator: "regex", Value: StringValue(".*")}}, Action: Action{Type: ActionRedirect, Value: "https://x.example.com"}, Enabled: true},
			{ID: "bad-type", Conditions: []Condition{{Type: "moon_phase", Operator: OpEquals, Value: StringValue("full")}}, Action: Action{Type: ActionRedirect, Value: "https://y.example.com"}, Enabled: true},
			{ID: "bad-between", Conditions: []Condition{{Type: ConditionTime, Operator: OpBetween, Value: NumbersValue(1)}}, Action: Action{Type: ActionRedirect, Value: "https://z.example.com"}, Enabled: true},
		}},
	}

	for i, cfg := range configs {
		res := engine.ResolveContext(context.Background(), cfg, sc)
		if res.URL != "https://example.com" || !res.Fallback {
			t.Errorf("config %d: expected default url, got %+v", i, res)
		}
	}
}

func TestResolveContext_UnknownActionFallsBack(t *testing.T) {
	cfg := MultiURLConfig{DefaultURL: "https://example.com", Rules: []Rule{
		{ID: "odd", Action: Action{Type: "teleport", Value: "https://x.example.com"}, Enabled: true},
	}}
	res := newTestEngine(&stubCaller{}).ResolveContext(context.Background(), cfg, scanAt(9))
	if res.URL != "https://example.com" || res.Err == nil {
		t.Errorf("Expected degraded fallback, got %+v", res)
	}
}

func TestResolveContext_Content(t *testing.T) {
	cfg := MultiURLConfig{ID: "cfg42", DefaultURL: "https://example.com", Rules: []Rule{
		{ID: "menu", Action: Action{Type: ActionContent, Value: "menu-v2"}, Enabled: true},
	}}
	res := newTestEngine(&stubCaller{}).ResolveContext(context.Background(), cfg, scanAt(9))
	if res.URL != "/content/cfg42/menu" || res.Action != ActionContent {
		t.Errorf("Unexpected content resolution %+v", res)
	}
}

func TestResolveContext_APICall(t *testing.T) {
	cfg := MultiURLConfig{ID: "cfg", DefaultURL: "https://example.com", Rules: []Rule{
		{ID: "api", Action: Action{Type: ActionAPICall, Value: "https://router.example.com/decide", Metadata: map[string]string{"campaign": "q3"}}, Enabled: true},
	}}

	ok := &stubCaller{url: "https://dynamic.example.com/landing"}
	res := newTestEngine(ok).ResolveContext(context.Background(), cfg, scanAt(9))
	if res.URL != "https://dynamic.example.com/landing" || res.Fallback {
		t.Errorf("Unexpected api_call resolution %+v", res)
	}
	if ok.payload.RuleID != "api" || ok.payload.Metadata["campaign"] != "q3" || ok.payload.Context.Device.Type != "mobile" {
		t.Errorf("Unexpected payload %+v", ok.payload)
	}

	failing := &stubCaller{err: errors.New("connection refused")}
	res = newTestEngine(failing).ResolveContext(context.Background(), cfg, scanAt(9))
	if res.URL != "https://example.com" || !res.Fallback || res.Err == nil {
		t.Errorf("Expected fallback on api_call failure, got %+v", res)
	}
}

func TestResolveContext_ABSplit(t *testing.T) {
	rule, err := NewABTestRule("ab", "Landing test", 10, []string{"https://a.example.com", "https://b.example.com"}, []float64{30, 70})
	if err != nil {
		t.Fatalf("NewABTestRule() error = %v", err)
	}
	cfg := MultiURLConfig{DefaultURL: "https://example.com", Rules: []Rule{rule}}

	// draw 0.5 -> 50, lands in the second bucket (30, 100]
	res := newTestEngine(&stubCaller{}).ResolveContext(context.Background(), cfg, scanAt(9))
	if res.URL != "https://b.example.com" {
		t.Errorf("Expected variant b, got %+v", res)
	}
}

func TestHTTPAPICaller(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
		wantErr bool
	}{
		{
			name: "Valid response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var p APICallPayload
				if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.RuleID != "r1" {
					w.WriteHeader(http.StatusBadRequest)
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"redirectUrl": "https://target.example.com"})
			},
			want: "https://target.example.com",
		},
		{
			name: "Missing field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"url":"https://target.example.com"}`))
			},
			wantErr: true,
		},
		{
			name: "Malformed JSON",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`not json`))
			},
			wantErr: true,
		},
		{
			name: "Server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: true,
		},
		{
			name: "Non-http redirect",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"redirectUrl":"javascript:alert(1)"}`))
			},
			wantErr: true,
		},
		{
			name: "Slow endpoint",
			handler: func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(200 * time.Millisecond)
				w.Write([]byte(`{"redirectUrl":"https://late.example.com"}`))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			caller := NewHTTPAPICaller(50 * time.Millisecond)
			got, err := caller.Call(context.Background(), srv.URL, APICallPayload{RuleID: "r1"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Call() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Call() = %s, want %s", got, tt.want)
			}
		})
	}
}
