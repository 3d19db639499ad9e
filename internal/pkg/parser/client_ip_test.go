package parser

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	proxies, err := NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.1"})
	if err != nil {
		t.Fatalf("Failed to parse proxies: %v", err)
	}

	tests := []struct {
		name    string
		proxies *TrustedProxies
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", proxies, nil, "203.0.113.7:5123", "203.0.113.7"},
		{"spoofed forwarded for ignored", proxies, map[string]string{"X-Forwarded-For": "8.8.8.8"}, "203.0.113.7:5555", "203.0.113.7"},
		{"spoofed real ip ignored", proxies, map[string]string{"X-Real-IP": "8.8.8.8"}, "203.0.113.7:5555", "203.0.113.7"},
		{"no proxies configured", nil, map[string]string{"X-Forwarded-For": "8.8.8.8"}, "10.0.0.1:80", "10.0.0.1"},
		{"forwarded by trusted proxy", proxies, map[string]string{"X-Forwarded-For": "198.51.100.1"}, "10.0.0.1:80", "198.51.100.1"},
		{"rightmost untrusted hop wins", proxies, map[string]string{"X-Forwarded-For": "8.8.8.8, 198.51.100.1, 10.0.0.2"}, "10.0.0.1:80", "198.51.100.1"},
		{"all hops trusted", proxies, map[string]string{"X-Forwarded-For": "10.0.0.3, 10.0.0.2"}, "10.0.0.1:80", "10.0.0.3"},
		{"real ip by trusted proxy", proxies, map[string]string{"X-Real-IP": "198.51.100.2"}, "192.0.2.1:80", "198.51.100.2"},
		{"no port", proxies, nil, "192.0.2.9", "192.0.2.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := tt.proxies.ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTrustedProxies_Invalid(t *testing.T) {
	for _, entry := range []string{"not-an-ip", "10.0.0.0/99"} {
		if _, err := NewTrustedProxies([]string{entry}); err == nil {
			t.Errorf("Expected error for %q", entry)
		}
	}
}
