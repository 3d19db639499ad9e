package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	ActionQRCodeCreate  = "qr_code.create"
	ActionQRCodeUpdate  = "qr_code.update"
	ActionQRCodeArchive = "qr_code.archive"

	ResourceQRCode = "qr_code"
)

type Entry struct {
	ID           string                 `json:"id"`
	UserID       string                 `json:"user_id"`
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	IPAddress    string                 `json:"ip_address"`
	UserAgent    string                 `json:"user_agent"`
	CreatedAt    int64                  `json:"created_at"`
}

// Logger records management actions. Writes happen in the background.
type Logger struct {
	db *sql.DB
	wg sync.WaitGroup
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(e Entry) {
	if l == nil {
		return
	}
	if e.ID == "" {
		e.ID = "audit_" + uuid.New().String()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.insert(ctx, &e); err != nil {
			log.Warn().Err(err).Str("action", e.Action).Str("resource_id", e.ResourceID).Msg("Failed to write audit log")
		}
	}()
}

func (l *Logger) insert(ctx context.Context, e *Entry) error {
	var meta interface{}
	if len(e.Metadata) > 0 {
		data, err := json.Marshal(e.Metadata)
		if err != nil {
			return err
		}
		meta = string(data)
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.UserID, e.Action, e.ResourceType, e.ResourceID, meta, e.IPAddress, e.UserAgent, e.CreatedAt)
	return err
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	if l == nil {
		return
	}
	l.wg.Wait()
}

// List returns the newest entries recorded for userID.
func (l *Logger) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var meta, ip, ua sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID, &meta, &ip, &ua, &e.CreatedAt); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &e.Metadata); err != nil {
				return nil, err
			}
		}
		e.IPAddress = ip.String
		e.UserAgent = ua.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
