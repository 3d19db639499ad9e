package geoip

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ErrUnavailable is returned when no geolocation source is configured.
var ErrUnavailable = errors.New("geoip: lookup unavailable")

// Location is the coarse position of an IP address.
type Location struct {
	CountryCode string
	Region      string
	City        string
	TimeZone    string
	Latitude    float64
	Longitude   float64
}

// Resolver defines the interface for GeoIP lookups
type Resolver interface {
	Lookup(ctx context.Context, ip string) (*Location, error)
}

// NoopResolver is used when the MaxMind DB is not available. Every lookup fails
// so callers fall back to their unknown-location defaults.
type NoopResolver struct{}

func NewNoopResolver() *NoopResolver {
	return &NoopResolver{}
}

func (r *NoopResolver) Lookup(ctx context.Context, ip string) (*Location, error) {
	return nil, ErrUnavailable
}

// MaxMindResolver reads a GeoLite2/GeoIP2 City database.
type MaxMindResolver struct {
	reader *geoip2.Reader
}

func NewMaxMindResolver(dbPath string) (*MaxMindResolver, error) {
	reader, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindResolver{reader: reader}, nil
}

func (r *MaxMindResolver) Close() error {
	return r.reader.Close()
}

func (r *MaxMindResolver) Lookup(ctx context.Context, ipAddress string) (*Location, error) {
	ip := net.ParseIP(ipAddress)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address: %q", ipAddress)
	}

	record, err := r.reader.City(ip)
	if err != nil {
		return nil, err
	}
	if record.Country.IsoCode == "" {
		return nil, fmt.Errorf("no geoip record for %s", ipAddress)
	}

	loc := &Location{
		CountryCode: record.Country.IsoCode,
		City:        record.City.Names["en"],
		TimeZone:    record.Location.TimeZone,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	return loc, nil
}

// New returns a MaxMind resolver when dbPath is set, otherwise a NoopResolver.
func New(dbPath string) (Resolver, error) {
	if dbPath == "" {
		return NewNoopResolver(), nil
	}
	return NewMaxMindResolver(dbPath)
}
