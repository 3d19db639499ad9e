package scans

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const topN = 10

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Record(ctx context.Context, s *Scan) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.Timestamp == 0 {
		s.Timestamp = time.Now().UnixMilli()
	}

	query := `
		INSERT INTO scans (
			id, qr_code_id, short_code, timestamp, ip_address, user_agent,
			identifier, country_code, city, device_type, os, browser,
			referrer, destination_url, rule_id, allowed, deny_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		s.QRCodeID,
		s.ShortCode,
		s.Timestamp,
		s.IPAddress,
		s.UserAgent,
		s.Identifier,
		s.CountryCode,
		s.City,
		s.DeviceType,
		s.OS,
		s.Browser,
		s.Referrer,
		s.DestinationURL,
		s.RuleID,
		s.Allowed,
		s.DenyReason,
	)
	return err
}

// Usage counts only include allowed scans.

func (r *Repository) TotalScans(ctx context.Context, qrID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scans WHERE qr_code_id = ? AND allowed = 1", qrID,
	).Scan(&n)
	return n, err
}

// ScansOnDay counts scans on the calendar day of day, in day's location.
func (r *Repository) ScansOnDay(ctx context.Context, qrID string, day time.Time) (int64, error) {
	start, end := dayBounds(day)
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scans WHERE qr_code_id = ? AND allowed = 1 AND timestamp >= ? AND timestamp < ?",
		qrID, start.UnixMilli(), end.UnixMilli(),
	).Scan(&n)
	return n, err
}

func (r *Repository) ScansByIdentifier(ctx context.Context, qrID, identifier string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scans WHERE qr_code_id = ? AND allowed = 1 AND identifier = ?",
		qrID, identifier,
	).Scan(&n)
	return n, err
}

// Stats aggregates scans of a QR code since the given time.
func (r *Repository) Stats(ctx context.Context, qrID string, since time.Time) (*Stats, error) {
	stats := &Stats{}
	sinceMs := since.UnixMilli()

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN allowed = 1 THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT ip_address)
		FROM scans WHERE qr_code_id = ? AND timestamp >= ?
	`, qrID, sinceMs).Scan(&stats.Total, &stats.Allowed, &stats.UniqueVisitors)
	if err != nil {
		return nil, err
	}
	stats.Denied = stats.Total - stats.Allowed

	if stats.TopCountries, err = r.breakdown(ctx, "country_code", qrID, sinceMs); err != nil {
		return nil, err
	}
	if stats.TopDevices, err = r.breakdown(ctx, "device_type", qrID, sinceMs); err != nil {
		return nil, err
	}
	if stats.TopRules, err = r.breakdown(ctx, "rule_id", qrID, sinceMs); err != nil {
		return nil, err
	}
	return stats, nil
}

// column is always one of the fixed names passed by Stats.
func (r *Repository) breakdown(ctx context.Context, column, qrID string, sinceMs int64) ([]Bucket, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(%[1]s, ''), COUNT(*) FROM scans
		WHERE qr_code_id = ? AND timestamp >= ? AND allowed = 1
		GROUP BY %[1]s ORDER BY COUNT(*) DESC LIMIT ?
	`, column)

	rows, err := r.db.QueryContext(ctx, query, qrID, sinceMs, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	buckets := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// Prune deletes scans older than before and returns how many were removed.
func (r *Repository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM scans WHERE timestamp < ?", before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}
