package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	apiContext "smartqr/internal/api/context"
	"smartqr/internal/api/middleware"
	"smartqr/internal/engine/qrcodes"
	"smartqr/internal/engine/redirect"
	"smartqr/internal/engine/scancontext"
	"smartqr/internal/engine/scans"
	"smartqr/internal/engine/smartqr"
	"smartqr/internal/pkg/errors"
	"smartqr/internal/pkg/parser"
	"smartqr/internal/platform/audit"
)

const defaultStatsWindow = 30 * 24 * time.Hour

// StatsReader aggregates the scan log of one QR code.
type StatsReader interface {
	Stats(ctx context.Context, qrID string, since time.Time) (*scans.Stats, error)
}

type QRCodeHandler struct {
	service   *qrcodes.Service
	stats     StatsReader
	extractor *scancontext.Extractor
	cache     *redirect.QRCodeCache

	// ShortDomain, when set, is used to build scan_url in responses.
	ShortDomain string
	Audit       *audit.Logger
	Proxies     *parser.TrustedProxies
}

func NewQRCodeHandler(service *qrcodes.Service, stats StatsReader, extractor *scancontext.Extractor, cache *redirect.QRCodeCache) *QRCodeHandler {
	return &QRCodeHandler{service: service, stats: stats, extractor: extractor, cache: cache}
}

type qrCodeResponse struct {
	*qrcodes.QRCode
	ScanURL string `json:"scan_url,omitempty"`
}

func (h *QRCodeHandler) present(q *qrcodes.QRCode) qrCodeResponse {
	resp := qrCodeResponse{QRCode: q.Redacted()}
	if h.ShortDomain != "" {
		resp.ScanURL = "https://" + h.ShortDomain + "/q/" + q.ShortCode
	}
	return resp
}

func (h *QRCodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	var req qrcodes.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", err.Error())
		return
	}
	req.CreatedBy = claims.UserID

	qr, err := h.service.Create(r.Context(), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.Audit.Log(h.auditEntry(r, claims.UserID, audit.ActionQRCodeCreate, qr.ID, map[string]interface{}{"short_code": qr.ShortCode}))

	errors.WriteJSON(w, http.StatusCreated, h.present(qr))
}

func (h *QRCodeHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	list, err := h.service.List(r.Context(), claims.UserID, limit, (page-1)*limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]qrCodeResponse, 0, len(list))
	for _, q := range list {
		out = append(out, h.present(q))
	}
	errors.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"data":  out,
		"page":  page,
		"limit": limit,
	})
}

func (h *QRCodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	qr, ok := h.owned(w, r)
	if !ok {
		return
	}
	errors.WriteJSON(w, http.StatusOK, h.present(qr))
}

func (h *QRCodeHandler) Update(w http.ResponseWriter, r *http.Request) {
	qr, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req qrcodes.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", err.Error())
		return
	}

	updated, err := h.service.Update(r.Context(), qr.ID, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.cache.Delete(qr.ShortCode)
	h.Audit.Log(h.auditEntry(r, qr.CreatedBy, audit.ActionQRCodeUpdate, qr.ID, map[string]interface{}{"status": updated.Status}))

	errors.WriteJSON(w, http.StatusOK, h.present(updated))
}

func (h *QRCodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	qr, ok := h.owned(w, r)
	if !ok {
		return
	}

	if err := h.service.Archive(r.Context(), qr.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	h.cache.Delete(qr.ShortCode)
	h.Audit.Log(h.auditEntry(r, qr.CreatedBy, audit.ActionQRCodeArchive, qr.ID, nil))

	w.WriteHeader(http.StatusNoContent)
}

func (h *QRCodeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	qr, ok := h.owned(w, r)
	if !ok {
		return
	}

	window := defaultStatsWindow
	if days, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && days > 0 {
		window = time.Duration(days) * 24 * time.Hour
	}

	stats, err := h.stats.Stats(r.Context(), qr.ID, time.Now().Add(-window))
	if err != nil {
		log.Error().Err(err).Str("qr_id", qr.ID).Msg("failed to aggregate scans")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Failed to load stats", nil)
		return
	}
	errors.WriteJSON(w, http.StatusOK, stats)
}

type previewRequest struct {
	UserAgent      string            `json:"user_agent"`
	IPAddress      string            `json:"ip"`
	Referrer       string            `json:"referrer"`
	AcceptLanguage string            `json:"accept_language"`
	Params         map[string]string `json:"params"`
	Time           *time.Time        `json:"time"`
}

type previewResponse struct {
	Matched bool                    `json:"matched"`
	RuleID  string                  `json:"rule_id,omitempty"`
	Action  smartqr.ActionType      `json:"action,omitempty"`
	URL     string                  `json:"url"`
	Context scancontext.ScanContext `json:"context"`
}

// Preview reports which rule a hypothetical scan would hit. It performs no
// outbound api_call and draws no A/B variant.
func (h *QRCodeHandler) Preview(w http.ResponseWriter, r *http.Request) {
	qr, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, "Invalid request body", err.Error())
		return
	}

	sig := scancontext.RawSignals{
		UserAgent:      req.UserAgent,
		IPAddress:      req.IPAddress,
		Referrer:       req.Referrer,
		AcceptLanguage: req.AcceptLanguage,
		CustomParams:   req.Params,
	}
	if req.Time != nil {
		sig.Time = *req.Time
	}
	sc, _ := h.extractor.Extract(r.Context(), sig)

	resp := previewResponse{URL: qr.Config.DefaultURL, Context: sc}
	if rule, matched := smartqr.MatchRule(qr.Config.Rules, sc); matched {
		resp.Matched = true
		resp.RuleID = rule.ID
		resp.Action = rule.Action.Type
		switch rule.Action.Type {
		case smartqr.ActionContent:
			resp.URL = smartqr.ContentPath(qr.Config.ID, rule.ID)
		default:
			if rule.Action.Value != "" {
				resp.URL = rule.Action.Value
			} else if rule.Action.Split != nil && len(rule.Action.Split.URLs) > 0 {
				resp.URL = rule.Action.Split.URLs[0]
			}
		}
	}

	errors.WriteJSON(w, http.StatusOK, resp)
}

// owned loads the :qr_id route param and hides codes owned by other users.
func (h *QRCodeHandler) owned(w http.ResponseWriter, r *http.Request) (*qrcodes.QRCode, bool) {
	claims := middleware.ClaimsFrom(r.Context())
	if claims == nil {
		errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Authentication required", nil)
		return nil, false
	}

	params, _ := r.Context().Value(apiContext.Params).(httprouter.Params)
	qr, err := h.service.Get(r.Context(), params.ByName("qr_id"))
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if qr.CreatedBy != claims.UserID {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "QR code not found", nil)
		return nil, false
	}
	return qr, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	var cfgErr *smartqr.ConfigError
	switch {
	case stderrors.Is(err, qrcodes.ErrNotFound):
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "QR code not found", nil)
	case stderrors.Is(err, qrcodes.ErrShortCodeTaken):
		errors.WriteError(w, http.StatusConflict, errors.ErrCodeConflict, err.Error(), nil)
	case stderrors.As(err, &cfgErr):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidConfig, "Invalid smart QR config", cfgErr.Problems)
	case stderrors.Is(err, qrcodes.ErrInvalid):
		errors.WriteError(w, http.StatusBadRequest, errors.ErrCodeInvalidInput, err.Error(), nil)
	default:
		log.Error().Err(err).Msg("qr code operation failed")
		errors.WriteError(w, http.StatusInternalServerError, errors.ErrCodeInternal, "Internal server error", nil)
	}
}
