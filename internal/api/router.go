package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"

	apiContext "smartqr/internal/api/context"
	"smartqr/internal/api/handlers"
	"smartqr/internal/api/middleware"
	"smartqr/internal/pkg/errors"
)

type Dependencies struct {
	RedirectHandler *handlers.RedirectHandler
	QRCodeHandler   *handlers.QRCodeHandler
	HealthHandler   *handlers.HealthHandler
	MetricsHandler  *handlers.MetricsHandler
	AuditHandler    *handlers.AuditHandler
	AuthMiddleware  *middleware.AuthMiddleware
	RateLimiter     *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Not found", nil)
	})

	// Public scan endpoint. POST carries a password form submission.
	scan := deps.RedirectHandler.Handle
	if deps.RateLimiter != nil {
		scan = deps.RateLimiter.Handle(scan)
	}
	router.GET("/q/:short_code", wrap(scan))
	router.POST("/q/:short_code", wrap(scan))

	router.GET("/health", wrap(deps.HealthHandler.Check))
	if deps.MetricsHandler != nil {
		router.GET("/metrics", wrap(deps.MetricsHandler.Export))
	}

	authMid := deps.AuthMiddleware
	qr := deps.QRCodeHandler

	router.POST("/api/v1/qrcodes", chain(qr.Create, authMid.Handle))
	router.GET("/api/v1/qrcodes", chain(qr.List, authMid.Handle))
	router.GET("/api/v1/qrcodes/:qr_id", chain(qr.Get, authMid.Handle))
	router.PATCH("/api/v1/qrcodes/:qr_id", chain(qr.Update, authMid.Handle))
	router.DELETE("/api/v1/qrcodes/:qr_id", chain(qr.Delete, authMid.Handle))
	router.GET("/api/v1/qrcodes/:qr_id/stats", chain(qr.Stats, authMid.Handle))
	router.POST("/api/v1/qrcodes/:qr_id/preview", chain(qr.Preview, authMid.Handle))

	if deps.AuditHandler != nil {
		router.GET("/api/v1/audit", chain(deps.AuditHandler.List, authMid.Handle))
	}

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
