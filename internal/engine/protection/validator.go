package protection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	GatePassword = "password"
	GateTime     = "time"
	GateUsage    = "usage"
	GateGeofence = "geofence"
)

// Decision is the outcome of an access check. Denials are ordinary values.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresPassword bool   `json:"requiresPassword,omitempty"`
	RequiresLocation bool   `json:"requiresLocation,omitempty"`
	Gate             string `json:"-"`
}

// UserLocation is where the scanner is, as far as it is known.
type UserLocation struct {
	Country        string
	Region         string
	City           string
	Lat            float64
	Lng            float64
	HasCoordinates bool
}

type UserInputs struct {
	Password       string
	UserIdentifier string
	Location       *UserLocation
}

// ScanCounter reads historical scan counts for a QR code.
type ScanCounter interface {
	TotalScans(ctx context.Context, qrID string) (int64, error)
	ScansOnDay(ctx context.Context, qrID string, day time.Time) (int64, error)
	ScansByIdentifier(ctx context.Context, qrID, identifier string) (int64, error)
}

type Validator struct {
	counter ScanCounter
	now     func() time.Time
	local   *time.Location
}

type Option func(*Validator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithLocation sets the zone used when a time gate names none.
func WithLocation(loc *time.Location) Option {
	return func(v *Validator) { v.local = loc }
}

func NewValidator(counter ScanCounter, opts ...Option) *Validator {
	v := &Validator{counter: counter, now: time.Now, local: time.Local}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate runs the gates in order: password, time, usage, geofence. The
// first denial wins. Missing inputs deny; a failing count lookup allows.
func (v *Validator) Validate(ctx context.Context, qrID string, s *Settings, in UserInputs) Decision {
	if s == nil {
		return Decision{Allowed: true}
	}

	if g := s.Password; g != nil && g.Enabled {
		if d, denied := v.checkPassword(g, in.Password); denied {
			return d
		}
	}
	if g := s.TimeBased; g != nil && g.Enabled {
		if d, denied := v.checkTime(g); denied {
			return d
		}
	}
	if g := s.UsageLimits; g != nil && g.Enabled && in.UserIdentifier != "" {
		if d, denied := v.checkUsage(ctx, qrID, g, in.UserIdentifier); denied {
			return d
		}
	}
	if g := s.Geofence; g != nil && g.Enabled {
		if d, denied := checkGeofence(g, in.Location); denied {
			return d
		}
	}

	return Decision{Allowed: true}
}

func (v *Validator) checkPassword(g *PasswordGate, password string) (Decision, bool) {
	if password == "" {
		reason := "Password required"
		if g.Hint != "" {
			reason = fmt.Sprintf("Password required (hint: %s)", g.Hint)
		}
		return Decision{Reason: reason, RequiresPassword: true, Gate: GatePassword}, true
	}
	if !VerifyPassword(password, g.Hash) {
		return deny(GatePassword, "Invalid password"), true
	}
	return Decision{}, false
}

func (v *Validator) checkTime(g *TimeGate) (Decision, bool) {
	loc := v.local
	if g.Timezone != "" {
		if tz, err := time.LoadLocation(g.Timezone); err == nil {
			loc = tz
		} else {
			log.Warn().Str("timezone", g.Timezone).Msg("unknown time gate timezone, using local zone")
		}
	}
	now := v.now().In(loc)

	if g.StartDate != nil && g.EndDate != nil {
		if now.Before(*g.StartDate) {
			return deny(GateTime, "This QR code is not active yet"), true
		}
		if now.After(*g.EndDate) {
			return deny(GateTime, "This QR code has expired"), true
		}
	}

	if len(g.AllowedDays) > 0 {
		today := int(now.Weekday())
		allowed := false
		for _, d := range g.AllowedDays {
			if d == today {
				allowed = true
				break
			}
		}
		if !allowed {
			return deny(GateTime, fmt.Sprintf("This QR code is not available on %s", now.Weekday())), true
		}
	}

	if h := g.AllowedHours; h != nil && !h.Contains(now.Hour()) {
		return deny(GateTime, fmt.Sprintf("This QR code is only available between %02d:00 and %02d:00", h.Start, h.End)), true
	}

	return Decision{}, false
}

func (v *Validator) checkUsage(ctx context.Context, qrID string, g *UsageGate, identifier string) (Decision, bool) {
	if v.counter == nil {
		return Decision{}, false
	}

	type limit struct {
		max    int64
		count  func() (int64, error)
		reason string
	}
	limits := []limit{
		{g.MaxScans, func() (int64, error) { return v.counter.TotalScans(ctx, qrID) }, "This QR code has reached its scan limit"},
		{g.MaxScansPerDay, func() (int64, error) { return v.counter.ScansOnDay(ctx, qrID, v.now()) }, "This QR code has reached its daily scan limit"},
		{g.MaxScansPerUser, func() (int64, error) { return v.counter.ScansByIdentifier(ctx, qrID, identifier) }, "You have reached the scan limit for this QR code"},
	}

	for _, l := range limits {
		if l.max <= 0 {
			continue
		}
		n, err := l.count()
		if err != nil {
			log.Warn().Err(err).Str("qr_id", qrID).Msg("scan count lookup failed, usage gate passes")
			return Decision{}, false
		}
		if n >= l.max {
			return deny(GateUsage, l.reason), true
		}
	}
	return Decision{}, false
}

func checkGeofence(g *GeofenceGate, loc *UserLocation) (Decision, bool) {
	if loc == nil || (g.HasRadius() && !loc.HasCoordinates) || missingPlace(g, loc) {
		return Decision{Reason: "Location access required", RequiresLocation: true, Gate: GateGeofence}, true
	}

	notAllowed := "This QR code is not available in your location"
	switch {
	case len(g.AllowedCountries) > 0 && !containsFold(g.AllowedCountries, loc.Country):
		return deny(GateGeofence, notAllowed), true
	case len(g.BlockedCountries) > 0 && containsFold(g.BlockedCountries, loc.Country):
		return deny(GateGeofence, notAllowed), true
	case len(g.AllowedRegions) > 0 && !containsFold(g.AllowedRegions, loc.Region):
		return deny(GateGeofence, notAllowed), true
	case len(g.BlockedRegions) > 0 && containsFold(g.BlockedRegions, loc.Region):
		return deny(GateGeofence, notAllowed), true
	case len(g.AllowedCities) > 0 && !containsFold(g.AllowedCities, loc.City):
		return deny(GateGeofence, notAllowed), true
	case len(g.BlockedCities) > 0 && containsFold(g.BlockedCities, loc.City):
		return deny(GateGeofence, notAllowed), true
	}

	if g.HasRadius() {
		distance := DistanceKm(*g.Center, Point{Lat: loc.Lat, Lng: loc.Lng})
		if distance > g.RadiusKm {
			return deny(GateGeofence, fmt.Sprintf("You are %.1fkm away, outside the allowed %.1fkm radius", distance, g.RadiusKm)), true
		}
	}
	return Decision{}, false
}

// missingPlace reports whether a configured country, region or city list
// has nothing to compare against. Coordinates alone do not satisfy a list.
func missingPlace(g *GeofenceGate, loc *UserLocation) bool {
	switch {
	case (len(g.AllowedCountries) > 0 || len(g.BlockedCountries) > 0) && unresolved(loc.Country):
		return true
	case (len(g.AllowedRegions) > 0 || len(g.BlockedRegions) > 0) && unresolved(loc.Region):
		return true
	case (len(g.AllowedCities) > 0 || len(g.BlockedCities) > 0) && unresolved(loc.City):
		return true
	}
	return false
}

func unresolved(field string) bool {
	return field == "" || strings.EqualFold(field, "unknown")
}

func deny(gate, reason string) Decision {
	return Decision{Reason: reason, Gate: gate}
}
