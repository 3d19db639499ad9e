package scans

import "context"

// Scan is one recorded QR code scan, allowed or denied.
type Scan struct {
	ID             string `json:"id"`
	QRCodeID       string `json:"qr_code_id"`
	ShortCode      string `json:"short_code"`
	Timestamp      int64  `json:"timestamp"` // unix ms
	IPAddress      string `json:"-"`
	UserAgent      string `json:"user_agent"`
	Identifier     string `json:"identifier,omitempty"`
	CountryCode    string `json:"country_code"`
	City           string `json:"city"`
	DeviceType     string `json:"device_type"`
	OS             string `json:"os"`
	Browser        string `json:"browser"`
	Referrer       string `json:"referrer,omitempty"`
	DestinationURL string `json:"destination_url,omitempty"`
	RuleID         string `json:"rule_id,omitempty"`
	Allowed        bool   `json:"allowed"`
	DenyReason     string `json:"deny_reason,omitempty"`
}

// Writer persists scans.
type Writer interface {
	Record(ctx context.Context, scan *Scan) error
}

type Bucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

type Stats struct {
	Total          int64    `json:"total"`
	Allowed        int64    `json:"allowed"`
	Denied         int64    `json:"denied"`
	UniqueVisitors int64    `json:"unique_visitors"`
	TopCountries   []Bucket `json:"top_countries"`
	TopDevices     []Bucket `json:"top_devices"`
	TopRules       []Bucket `json:"top_rules"`
}
