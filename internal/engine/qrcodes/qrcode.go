package qrcodes

import (
	"errors"
	"time"

	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/smartqr"
)

const (
	StatusActive   = "active"
	StatusPaused   = "paused"
	StatusArchived = "archived"
	StatusExpired  = "expired"
)

var (
	ErrNotFound       = errors.New("qr code not found")
	ErrInvalid        = errors.New("invalid qr code")
	ErrShortCodeTaken = errors.New("short code already taken")
)

type QRCode struct {
	ID         string                 `json:"id"`
	ShortCode  string                 `json:"short_code"`
	Name       string                 `json:"name"`
	Status     string                 `json:"status"` // active, paused, archived, expired
	Config     smartqr.MultiURLConfig `json:"config"`
	Protection *protection.Settings   `json:"protection,omitempty"`
	CreatedBy  string                 `json:"created_by"`
	ExpiresAt  *int64                 `json:"expires_at,omitempty"`
	CreatedAt  int64                  `json:"created_at"`
	UpdatedAt  int64                  `json:"updated_at"`
}

// Servable reports whether scans of the code should be routed at time now.
func (q *QRCode) Servable(now time.Time) bool {
	if q.Status != StatusActive {
		return false
	}
	return q.ExpiresAt == nil || now.Unix() < *q.ExpiresAt
}

// Redacted returns a copy safe to hand to API clients.
func (q *QRCode) Redacted() *QRCode {
	out := *q
	if q.Protection != nil {
		p := *q.Protection
		if p.Password != nil {
			pw := *p.Password
			pw.Hash = ""
			p.Password = &pw
		}
		out.Protection = &p
	}
	return &out
}
