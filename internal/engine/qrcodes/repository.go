package qrcodes

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"smartqr/internal/engine/protection"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const selectColumns = `
	SELECT id, short_code, name, status, config, protection,
	       created_by, expires_at, created_at, updated_at
	FROM qr_codes`

func (r *Repository) Create(ctx context.Context, q *QRCode) error {
	query := `
		INSERT INTO qr_codes (
			id, short_code, name, status, config, protection,
			created_by, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		q.ID,
		q.ShortCode,
		q.Name,
		q.Status,
		q.Config,
		protectionValue(q.Protection),
		q.CreatedBy,
		q.ExpiresAt,
		q.CreatedAt,
		q.UpdatedAt,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id string) (*QRCode, error) {
	return scanQRCode(r.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
}

func (r *Repository) GetByShortCode(ctx context.Context, shortCode string) (*QRCode, error) {
	return scanQRCode(r.db.QueryRowContext(ctx, selectColumns+" WHERE short_code = ?", shortCode))
}

func (r *Repository) ExistsByShortCode(ctx context.Context, shortCode string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM qr_codes WHERE short_code = ?)", shortCode).Scan(&exists)
	return exists, err
}

func (r *Repository) Update(ctx context.Context, q *QRCode) error {
	query := `
		UPDATE qr_codes SET
			name = ?, status = ?, config = ?, protection = ?,
			expires_at = ?, updated_at = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		q.Name,
		q.Status,
		q.Config,
		protectionValue(q.Protection),
		q.ExpiresAt,
		q.UpdatedAt,
		q.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *Repository) Archive(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE qr_codes SET status = ?, updated_at = ? WHERE id = ?",
		StatusArchived, time.Now().Unix(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ExpireDue marks active codes whose expiry has passed and returns their short codes.
func (r *Repository) ExpireDue(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT short_code FROM qr_codes WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		StatusActive, now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			rows.Close()
			return nil, err
		}
		codes = append(codes, code)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return nil, nil
	}

	_, err = r.db.ExecContext(ctx,
		"UPDATE qr_codes SET status = ?, updated_at = ? WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
		StatusExpired, now.Unix(), StatusActive, now.Unix(),
	)
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// List returns codes newest first. An empty createdBy lists every owner.
func (r *Repository) List(ctx context.Context, createdBy string, limit, offset int) ([]*QRCode, error) {
	query := selectColumns + " WHERE (? = '' OR created_by = ?) ORDER BY created_at DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, createdBy, createdBy, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	codes := []*QRCode{}
	for rows.Next() {
		q, err := scanQRCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, q)
	}
	return codes, rows.Err()
}

func scanQRCode(s interface {
	Scan(dest ...interface{}) error
}) (*QRCode, error) {
	var q QRCode
	var prot protection.Settings
	var protRaw sql.NullString
	var expiresAt sql.NullInt64

	err := s.Scan(
		&q.ID,
		&q.ShortCode,
		&q.Name,
		&q.Status,
		&q.Config,
		&protRaw,
		&q.CreatedBy,
		&expiresAt,
		&q.CreatedAt,
		&q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		val := expiresAt.Int64
		q.ExpiresAt = &val
	}
	if protRaw.Valid && protRaw.String != "" && protRaw.String != "null" {
		if err := prot.Scan(protRaw.String); err != nil {
			return nil, err
		}
		q.Protection = &prot
	}
	return &q, nil
}

func protectionValue(p *protection.Settings) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
