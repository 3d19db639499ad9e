package scancontext

import (
	"time"
)

type DeviceInfo struct {
	Type         string `json:"type"` // mobile, tablet, desktop
	OS           string `json:"os"`
	Browser      string `json:"browser"`
	RawUserAgent string `json:"rawUserAgent"`
}

type LocationInfo struct {
	Country  string `json:"country"`
	Region   string `json:"region"`
	City     string `json:"city"`
	Timezone string `json:"timezone"`
	Language string `json:"language"`

	// Coordinates are only meaningful when HasCoordinates is set.
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	HasCoordinates bool    `json:"hasCoordinates"`
}

// Resolved reports whether the geolocation lookup produced a country.
func (l LocationInfo) Resolved() bool {
	return l.Country != "" && l.Country != Unknown
}

// ScanContext is the normalized view of a single scan request.
type ScanContext struct {
	Device       DeviceInfo        `json:"device"`
	Location     LocationInfo      `json:"location"`
	Time         time.Time         `json:"time"`
	IPAddress    string            `json:"-"`
	Referrer     string            `json:"referrer,omitempty"`
	CustomParams map[string]string `json:"customParams,omitempty"`
}

// LocalTime returns the scan instant in the scan's resolved timezone,
// falling back to the process local zone.
func (c ScanContext) LocalTime() time.Time {
	t := c.Time
	if t.IsZero() {
		t = time.Now()
	}
	if c.Location.Timezone != "" {
		if loc, err := time.LoadLocation(c.Location.Timezone); err == nil {
			return t.In(loc)
		}
	}
	return t.In(time.Local)
}

// RawSignals are the request facts handed over by the redirect edge.
type RawSignals struct {
	UserAgent      string
	IPAddress      string
	Referrer       string
	AcceptLanguage string
	CustomParams   map[string]string
	Time           time.Time
}
