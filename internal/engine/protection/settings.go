package protection

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Settings groups the independent access gates of a QR code. A nil gate
// imposes no restriction.
type Settings struct {
	Password    *PasswordGate `json:"password,omitempty"`
	Geofence    *GeofenceGate `json:"geofence,omitempty"`
	TimeBased   *TimeGate     `json:"timeBased,omitempty"`
	UsageLimits *UsageGate    `json:"usageLimits,omitempty"`
}

type PasswordGate struct {
	Enabled bool   `json:"enabled"`
	Hash    string `json:"hash"`
	Hint    string `json:"hint,omitempty"`
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type GeofenceGate struct {
	Enabled          bool     `json:"enabled"`
	AllowedCountries []string `json:"allowedCountries,omitempty"`
	BlockedCountries []string `json:"blockedCountries,omitempty"`
	AllowedRegions   []string `json:"allowedRegions,omitempty"`
	BlockedRegions   []string `json:"blockedRegions,omitempty"`
	AllowedCities    []string `json:"allowedCities,omitempty"`
	BlockedCities    []string `json:"blockedCities,omitempty"`
	Center           *Point   `json:"center,omitempty"`
	RadiusKm         float64  `json:"radiusKm,omitempty"`
}

// HasRadius reports whether a center point and a positive radius are configured.
func (g *GeofenceGate) HasRadius() bool {
	return g.Center != nil && g.RadiusKm > 0
}

// HourRange is a [Start, End) window in hours. Start > End wraps past midnight.
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Contains reports whether hour falls in the window.
func (r HourRange) Contains(hour int) bool {
	if r.Start <= r.End {
		return hour >= r.Start && hour < r.End
	}
	return hour >= r.Start || hour < r.End
}

type TimeGate struct {
	Enabled      bool       `json:"enabled"`
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	AllowedDays  []int      `json:"allowedDays,omitempty"` // 0 = Sunday
	AllowedHours *HourRange `json:"allowedHours,omitempty"`
	Timezone     string     `json:"timezone,omitempty"`
}

// UsageGate limits are ignored when zero.
type UsageGate struct {
	Enabled         bool  `json:"enabled"`
	MaxScans        int64 `json:"maxScans,omitempty"`
	MaxScansPerDay  int64 `json:"maxScansPerDay,omitempty"`
	MaxScansPerUser int64 `json:"maxScansPerUser,omitempty"`
}

// Active reports whether any gate is enabled.
func (s *Settings) Active() bool {
	if s == nil {
		return false
	}
	return (s.Password != nil && s.Password.Enabled) ||
		(s.Geofence != nil && s.Geofence.Enabled) ||
		(s.TimeBased != nil && s.TimeBased.Enabled) ||
		(s.UsageLimits != nil && s.UsageLimits.Enabled)
}

// Validate checks the settings at build time.
func (s *Settings) Validate() error {
	if s == nil {
		return nil
	}
	if p := s.Password; p != nil && p.Enabled && p.Hash == "" {
		return errors.New("password gate is enabled without a password")
	}
	if t := s.TimeBased; t != nil {
		if t.Timezone != "" {
			if _, err := time.LoadLocation(t.Timezone); err != nil {
				return fmt.Errorf("time gate: unknown timezone %q", t.Timezone)
			}
		}
		for _, d := range t.AllowedDays {
			if d < 0 || d > 6 {
				return fmt.Errorf("time gate: allowed day %d out of range 0-6", d)
			}
		}
		if h := t.AllowedHours; h != nil && (h.Start < 0 || h.Start > 23 || h.End < 0 || h.End > 24) {
			return fmt.Errorf("time gate: invalid hour range %d-%d", h.Start, h.End)
		}
		if t.StartDate != nil && t.EndDate != nil && t.EndDate.Before(*t.StartDate) {
			return errors.New("time gate: endDate is before startDate")
		}
	}
	if g := s.Geofence; g != nil {
		if g.RadiusKm < 0 {
			return errors.New("geofence: radius must not be negative")
		}
		if c := g.Center; c != nil && (c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180) {
			return fmt.Errorf("geofence: invalid center %.4f,%.4f", c.Lat, c.Lng)
		}
	}
	if u := s.UsageLimits; u != nil && (u.MaxScans < 0 || u.MaxScansPerDay < 0 || u.MaxScansPerUser < 0) {
		return errors.New("usage limits must not be negative")
	}
	return nil
}

// Value implements the driver.Valuer interface for Settings
func (s Settings) Value() (driver.Value, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for Settings
func (s *Settings) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = Settings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("type assertion to []byte failed")
	}
}
