package qrcodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/smartqr"
)

type CreateRequest struct {
	Name       string                 `json:"name"`
	ShortCode  string                 `json:"short_code,omitempty"`
	Config     smartqr.MultiURLConfig `json:"config"`
	Protection *protection.Settings   `json:"protection,omitempty"`
	// Password, when set, is hashed into Protection.Password.
	Password     string `json:"password,omitempty"`
	PasswordHint string `json:"password_hint,omitempty"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"`
	CreatedBy    string `json:"-"`
}

// UpdateRequest fields left nil are unchanged.
type UpdateRequest struct {
	Name         *string                 `json:"name,omitempty"`
	Status       *string                 `json:"status,omitempty"`
	Config       *smartqr.MultiURLConfig `json:"config,omitempty"`
	Protection   *protection.Settings    `json:"protection,omitempty"`
	Password     *string                 `json:"password,omitempty"`
	PasswordHint *string                 `json:"password_hint,omitempty"`
	ExpiresAt    *int64                  `json:"expires_at,omitempty"`
}

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, req *CreateRequest) (*QRCode, error) {
	shortCode, err := GenerateShortCode(ctx, req.ShortCode, s.repo)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	q := &QRCode{
		ID:         uuid.New().String(),
		ShortCode:  shortCode,
		Name:       req.Name,
		Status:     StatusActive,
		Config:     req.Config,
		Protection: req.Protection,
		CreatedBy:  req.CreatedBy,
		ExpiresAt:  req.ExpiresAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	q.Config.ID = q.ID
	if q.Config.Name == "" {
		q.Config.Name = q.Name
	}
	applyPassword(q, req.Password, req.PasswordHint)

	if err := validate(q); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, q); err != nil {
		return nil, err
	}

	log.Info().Str("qr_id", q.ID).Str("short_code", q.ShortCode).Int("rules", len(q.Config.Rules)).Msg("QR code created")
	return q, nil
}

func (s *Service) Get(ctx context.Context, id string) (*QRCode, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByShortCode(ctx context.Context, shortCode string) (*QRCode, error) {
	return s.repo.GetByShortCode(ctx, shortCode)
}

func (s *Service) Update(ctx context.Context, id string, req *UpdateRequest) (*QRCode, error) {
	existing, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Status != nil {
		existing.Status = *req.Status
	}
	if req.Config != nil {
		existing.Config = *req.Config
		existing.Config.ID = existing.ID
	}
	if req.Protection != nil {
		// keep the stored hash unless a new password arrives
		var oldHash string
		if existing.Protection != nil && existing.Protection.Password != nil {
			oldHash = existing.Protection.Password.Hash
		}
		existing.Protection = req.Protection
		if pw := existing.Protection.Password; pw != nil && pw.Hash == "" {
			pw.Hash = oldHash
		}
	}
	if req.Password != nil {
		hint := ""
		if req.PasswordHint != nil {
			hint = *req.PasswordHint
		}
		applyPassword(existing, *req.Password, hint)
	}
	if req.ExpiresAt != nil {
		existing.ExpiresAt = req.ExpiresAt
	}
	existing.UpdatedAt = time.Now().Unix()

	if err := validate(existing); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *Service) Archive(ctx context.Context, id string) error {
	return s.repo.Archive(ctx, id)
}

func (s *Service) List(ctx context.Context, createdBy string, limit, offset int) ([]*QRCode, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, createdBy, limit, offset)
}

// ExpireDue flips overdue codes to expired and returns their short codes.
func (s *Service) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	return s.repo.ExpireDue(ctx, now)
}

func applyPassword(q *QRCode, password, hint string) {
	if password == "" {
		return
	}
	if q.Protection == nil {
		q.Protection = &protection.Settings{}
	}
	q.Protection.Password = &protection.PasswordGate{
		Enabled: true,
		Hash:    protection.HashPassword(password),
		Hint:    hint,
	}
}

func validate(q *QRCode) error {
	if q.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	switch q.Status {
	case StatusActive, StatusPaused, StatusArchived, StatusExpired:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, q.Status)
	}
	if err := smartqr.ValidateConfig(q.Config); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := q.Protection.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
