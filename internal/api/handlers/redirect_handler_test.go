package handlers

import (
	"context"
	"net/http/httptest"
	"testing"

	apiContext "smartqr/internal/api/context"
	"smartqr/internal/engine/scancontext"
	"smartqr/internal/pkg/parser"
)

func TestUserLocation(t *testing.T) {
	resolved := scancontext.LocationInfo{Country: "US", Region: "TX", City: "Austin"}
	unknown := scancontext.LocationInfo{Country: scancontext.Unknown, Region: scancontext.Unknown, City: scancontext.Unknown}
	withCoords := scancontext.LocationInfo{Country: "US", Latitude: 30.2, Longitude: -97.7, HasCoordinates: true}

	tests := []struct {
		name       string
		loc        scancontext.LocationInfo
		lat, lng   string
		wantNil    bool
		wantCoords bool
		wantLat    float64
	}{
		{"unknown without coordinates", unknown, "", "", true, false, 0},
		{"resolved country only", resolved, "", "", false, false, 0},
		{"device coordinates on unknown network", unknown, "48.85", "2.35", false, true, 48.85},
		{"device coordinates win over network", withCoords, "48.85", "2.35", false, true, 48.85},
		{"network coordinates fallback", withCoords, "", "", false, true, 30.2},
		{"half a coordinate ignored", resolved, "48.85", "", false, false, 0},
		{"out of range ignored", unknown, "123", "2", true, false, 0},
		{"coordinates only keep place empty", scancontext.LocationInfo{}, "0", "0", false, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := userLocation(tt.loc, tt.lat, tt.lng)
			if tt.wantNil {
				if got != nil {
					t.Fatalf("Expected nil location, got %+v", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Expected a location")
			}
			if got.HasCoordinates != tt.wantCoords || got.Lat != tt.wantLat {
				t.Errorf("Unexpected location %+v", got)
			}
			if !tt.loc.Resolved() && got.Country != "" {
				t.Errorf("Expected no country for an unresolved network location, got %q", got.Country)
			}
		})
	}
}

func TestCustomParams(t *testing.T) {
	r := httptest.NewRequest("GET", "/q/abc?utm_source=flyer&password=x&uid=u1&lang=fr", nil)
	params := customParams(r)

	if len(params) != 2 || params["utm_source"] != "flyer" || params["lang"] != "fr" {
		t.Errorf("Unexpected custom params %v", params)
	}
	if customParams(httptest.NewRequest("GET", "/q/abc", nil)) != nil {
		t.Error("Expected nil params without a query")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/q/abc", nil)
	r.RemoteAddr = "203.0.113.7:5555"
	r.Header.Set("X-Forwarded-For", "8.8.8.8")

	if got := clientIP(r, nil); got != "203.0.113.7" {
		t.Errorf("Expected RemoteAddr without trusted proxies, got %q", got)
	}

	proxies, err := parser.NewTrustedProxies([]string{"203.0.113.7"})
	if err != nil {
		t.Fatal(err)
	}
	if got := clientIP(r, proxies); got != "8.8.8.8" {
		t.Errorf("Expected forwarded address behind trusted proxy, got %q", got)
	}

	r = r.WithContext(context.WithValue(r.Context(), apiContext.ClientIP, "198.51.100.4"))
	if got := clientIP(r, proxies); got != "198.51.100.4" {
		t.Errorf("Expected address resolved by the rate limiter, got %q", got)
	}
}
