package scancontext

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/text/language"

	"smartqr/internal/pkg/geoip"
	"smartqr/internal/pkg/parser"
)

const (
	Unknown = parser.Unknown

	DefaultLookupTimeout = 5 * time.Second
	DefaultLocale        = "en-US"
)

type Options struct {
	LookupTimeout time.Duration
	DefaultLocale string
	// TimeZone is reported when the lookup cannot resolve one. Empty means the process local zone.
	TimeZone string
	// OnLookup, when set, is called after every geolocation attempt.
	OnLookup func(elapsed time.Duration, err error)
}

type Extractor struct {
	resolver geoip.Resolver
	opts     Options
}

func NewExtractor(resolver geoip.Resolver, opts Options) *Extractor {
	if resolver == nil {
		resolver = geoip.NewNoopResolver()
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = DefaultLookupTimeout
	}
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = DefaultLocale
	}
	if opts.TimeZone == "" {
		opts.TimeZone = time.Local.String()
	}
	return &Extractor{resolver: resolver, opts: opts}
}

// DeviceFromUserAgent classifies the device and detects OS and browser.
func DeviceFromUserAgent(ua string) DeviceInfo {
	os, browser := parser.ParseUserAgent(ua)
	return DeviceInfo{
		Type:         parser.ParseDeviceType(ua),
		OS:           os,
		Browser:      browser,
		RawUserAgent: ua,
	}
}

// Extract builds a ScanContext. The returned context is always usable; a
// non-nil error only reports that the location fell back to Unknown.
func (e *Extractor) Extract(ctx context.Context, sig RawSignals) (ScanContext, error) {
	at := sig.Time
	if at.IsZero() {
		at = time.Now()
	}

	location, err := e.LocationFromNetwork(ctx, sig.IPAddress, e.Locale(sig.AcceptLanguage))

	var params map[string]string
	if len(sig.CustomParams) > 0 {
		params = make(map[string]string, len(sig.CustomParams))
		for k, v := range sig.CustomParams {
			params[k] = v
		}
	}

	return ScanContext{
		Device:       DeviceFromUserAgent(sig.UserAgent),
		Location:     location,
		Time:         at,
		IPAddress:    sig.IPAddress,
		Referrer:     sig.Referrer,
		CustomParams: params,
	}, err
}

// Locale picks the preferred tag from an Accept-Language header.
func (e *Extractor) Locale(acceptLanguage string) string {
	if acceptLanguage == "" {
		return e.opts.DefaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return e.opts.DefaultLocale
	}
	return tags[0].String()
}

// LocationFromNetwork looks the IP up with a bounded timeout. It never fails
// from the caller's point of view: on any error the returned LocationInfo
// carries Unknown geography, the fallback timezone and the given locale.
func (e *Extractor) LocationFromNetwork(ctx context.Context, ip, locale string) (LocationInfo, error) {
	info := LocationInfo{
		Country:  Unknown,
		Region:   Unknown,
		City:     Unknown,
		Timezone: e.opts.TimeZone,
		Language: locale,
	}

	start := time.Now()
	loc, err := e.lookup(ctx, ip)
	if e.opts.OnLookup != nil {
		e.opts.OnLookup(time.Since(start), err)
	}
	if err != nil {
		return info, err
	}

	info.Country = orUnknown(loc.CountryCode)
	info.Region = orUnknown(loc.Region)
	info.City = orUnknown(loc.City)
	if loc.TimeZone != "" {
		info.Timezone = loc.TimeZone
	}
	if loc.Latitude != 0 || loc.Longitude != 0 {
		info.Latitude = loc.Latitude
		info.Longitude = loc.Longitude
		info.HasCoordinates = true
	}
	return info, nil
}

func (e *Extractor) lookup(ctx context.Context, ip string) (*geoip.Location, error) {
	if ip == "" {
		return nil, fmt.Errorf("no client ip")
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.LookupTimeout)
	defer cancel()

	type result struct {
		loc *geoip.Location
		err error
	}
	ch := make(chan result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("geoip lookup panicked: %v", r)}
			}
		}()
		loc, err := e.resolver.Lookup(ctx, ip)
		ch <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("geoip lookup: %w", ctx.Err())
	case res := <-ch:
		if res.err == nil && res.loc == nil {
			return nil, geoip.ErrUnavailable
		}
		return res.loc, res.err
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}
