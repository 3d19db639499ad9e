package handlers

import (
	"context"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "smartqr/internal/api/context"
	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/engine/redirect"
	"smartqr/internal/engine/scancontext"
	"smartqr/internal/engine/scans"
	"smartqr/internal/engine/smartqr"
	"smartqr/internal/engine/webhooks"
	"smartqr/internal/pkg/errors"
	"smartqr/internal/pkg/parser"
	"smartqr/internal/platform/metrics"
)

// Query parameters consumed by the edge and therefore not forwarded as custom params.
var reservedParams = map[string]bool{"password": true, "uid": true, "lat": true, "lng": true}

// QRCodeFinder looks up QR codes by their public short code.
type QRCodeFinder interface {
	GetByShortCode(ctx context.Context, shortCode string) (*qrcodes.QRCode, error)
}

type RedirectHandler struct {
	QRCodes   QRCodeFinder
	Cache     *redirect.QRCodeCache
	Extractor *scancontext.Extractor
	Validator *protection.Validator
	Engine    *smartqr.Engine
	Recorder  *scans.Recorder
	Webhooks  *webhooks.Dispatcher
	Metrics   *metrics.Metrics
	Proxies   *parser.TrustedProxies

	now func() time.Time
}

func NewRedirectHandler(finder QRCodeFinder, extractor *scancontext.Extractor, validator *protection.Validator, engine *smartqr.Engine) *RedirectHandler {
	return &RedirectHandler{
		QRCodes:   finder,
		Extractor: extractor,
		Validator: validator,
		Engine:    engine,
		now:       time.Now,
	}
}

type denialResponse struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason"`
	RequiresPassword bool   `json:"requiresPassword"`
	RequiresLocation bool   `json:"requiresLocation"`
}

func (h *RedirectHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := h.now()
	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	shortCode := params.ByName("short_code")
	if shortCode == "" {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "QR code not found", nil)
		return
	}

	qr, err := h.lookup(r.Context(), shortCode)
	if err != nil {
		if stderrors.Is(err, qrcodes.ErrNotFound) {
			errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "QR code not found", nil)
			return
		}
		log.Error().Err(err).Str("short_code", shortCode).Msg("failed to load QR code")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "QR code unavailable", nil)
		return
	}

	if !qr.Servable(start) {
		errors.WriteError(w, http.StatusGone, errors.ErrCodeGone, "This QR code is no longer active", nil)
		return
	}

	if err := r.ParseForm(); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid form body", nil)
		return
	}

	sc, err := h.Extractor.Extract(r.Context(), scancontext.RawSignals{
		UserAgent:      r.UserAgent(),
		IPAddress:      clientIP(r, h.Proxies),
		Referrer:       r.Referer(),
		AcceptLanguage: r.Header.Get("Accept-Language"),
		CustomParams:   customParams(r),
		Time:           start,
	})
	if err != nil {
		log.Debug().Err(err).Str("qr_id", qr.ID).Msg("scan location unresolved")
	}

	inputs := protection.UserInputs{
		Password:       firstNonEmpty(r.PostForm.Get("password"), r.URL.Query().Get("password"), r.Header.Get("X-QR-Password")),
		UserIdentifier: firstNonEmpty(r.Form.Get("uid"), r.Header.Get("X-QR-User")),
		Location:       userLocation(sc.Location, r.Form.Get("lat"), r.Form.Get("lng")),
	}

	scan := scans.Scan{
		QRCodeID:    qr.ID,
		ShortCode:   qr.ShortCode,
		Timestamp:   start.UnixMilli(),
		IPAddress:   sc.IPAddress,
		UserAgent:   sc.Device.RawUserAgent,
		Identifier:  inputs.UserIdentifier,
		CountryCode: sc.Location.Country,
		City:        sc.Location.City,
		DeviceType:  sc.Device.Type,
		OS:          sc.Device.OS,
		Browser:     sc.Device.Browser,
		Referrer:    sc.Referrer,
	}

	decision := h.Validator.Validate(r.Context(), qr.ID, qr.Protection, inputs)
	if !decision.Allowed {
		scan.DenyReason = decision.Reason
		h.record(scan, webhooks.EventScanDenied)
		h.Metrics.ObserveDenied(sc.Device.Type, decision.Gate, h.now().Sub(start))

		status := http.StatusForbidden
		if decision.RequiresPassword && !decision.RequiresLocation {
			status = http.StatusUnauthorized
		}
		errors.WriteJSON(w, status, denialResponse{
			Allowed:          false,
			Reason:           decision.Reason,
			RequiresPassword: decision.RequiresPassword,
			RequiresLocation: decision.RequiresLocation,
		})
		return
	}

	res := h.Engine.ResolveContext(r.Context(), qr.Config, sc)
	scan.Allowed = true
	scan.DestinationURL = res.URL
	scan.RuleID = res.RuleID
	h.record(scan, webhooks.EventScanAllowed)
	h.Metrics.ObserveAllowed(sc.Device.Type, string(res.Action), res.Fallback, res.Err != nil, h.now().Sub(start))

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.URL, http.StatusFound)
}

func (h *RedirectHandler) lookup(ctx context.Context, shortCode string) (*qrcodes.QRCode, error) {
	if qr, ok := h.Cache.Get(shortCode); ok {
		h.Metrics.ObserveCache(true)
		return qr, nil
	}
	h.Metrics.ObserveCache(false)

	qr, err := h.QRCodes.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, err
	}
	h.Cache.Set(qr)
	return qr, nil
}

func (h *RedirectHandler) record(scan scans.Scan, event string) {
	if h.Recorder != nil {
		h.Recorder.Record(scan)
	}
	h.Webhooks.Dispatch(event, scan.QRCodeID, scan)
}

func customParams(r *http.Request) map[string]string {
	query := r.URL.Query()
	if len(query) == 0 {
		return nil
	}
	out := make(map[string]string, len(query))
	for k, v := range query {
		if reservedParams[k] || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}

// userLocation merges the network location with device coordinates when both
// lat and lng parse. It returns nil when nothing is known about the scanner.
func userLocation(loc scancontext.LocationInfo, lat, lng string) *protection.UserLocation {
	out := &protection.UserLocation{}
	known := false
	if loc.Resolved() {
		out.Country = loc.Country
		out.Region = loc.Region
		out.City = loc.City
		known = true
	}

	if la, errLat := strconv.ParseFloat(lat, 64); errLat == nil {
		if ln, errLng := strconv.ParseFloat(lng, 64); errLng == nil && validCoordinates(la, ln) {
			out.Lat, out.Lng, out.HasCoordinates = la, ln, true
			known = true
		}
	}
	if !out.HasCoordinates && loc.HasCoordinates {
		out.Lat, out.Lng, out.HasCoordinates = loc.Latitude, loc.Longitude, true
		known = true
	}

	if !known {
		return nil
	}
	return out
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// clientIP reuses the address resolved upstream by the rate limiter.
func clientIP(r *http.Request, proxies *parser.TrustedProxies) string {
	if ip, ok := r.Context().Value(apiContext.ClientIP).(string); ok && ip != "" {
		return ip
	}
	return proxies.ClientIP(r)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
