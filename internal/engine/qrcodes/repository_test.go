package qrcodes

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"smartqr/internal/engine/protection"
	"smartqr/internal/engine/smartqr"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	// every pooled connection to :memory: would get its own empty database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	if err != nil {
		t.Fatalf("Failed to read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func testConfig() smartqr.MultiURLConfig {
	return smartqr.MultiURLConfig{
		Name:       "Menu",
		DefaultURL: "https://example.com",
		Rules: []smartqr.Rule{{
			ID:         "mobile",
			Priority:   10,
			Conditions: []smartqr.Condition{{Type: smartqr.ConditionDevice, Operator: smartqr.OpEquals, Value: smartqr.StringValue("mobile")}},
			Action:     smartqr.Action{Type: smartqr.ActionRedirect, Value: "https://m.example.com"},
			Enabled:    true,
		}},
	}
}

func TestRepository_CreateAndGet(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	now := time.Now().Unix()
	expires := now + 3600
	q := &QRCode{
		ID:        "qr1",
		ShortCode: "abc1234",
		Name:      "Menu",
		Status:    StatusActive,
		Config:    testConfig(),
		Protection: &protection.Settings{
			Geofence: &protection.GeofenceGate{Enabled: true, AllowedCountries: []string{"US"}},
		},
		CreatedBy: "user1",
		ExpiresAt: &expires,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.Create(ctx, q); err != nil {
		t.Fatalf("Failed to create qr code: %v", err)
	}

	fetched, err := repo.GetByShortCode(ctx, "abc1234")
	if err != nil {
		t.Fatalf("Failed to get qr code: %v", err)
	}
	if fetched.ID != "qr1" || fetched.ExpiresAt == nil || *fetched.ExpiresAt != expires {
		t.Errorf("Unexpected qr code %+v", fetched)
	}
	if len(fetched.Config.Rules) != 1 || fetched.Config.Rules[0].Conditions[0].Value.String() != "mobile" {
		t.Errorf("Config did not survive storage: %+v", fetched.Config)
	}
	if fetched.Protection == nil || fetched.Protection.Geofence.AllowedCountries[0] != "US" {
		t.Errorf("Protection did not survive storage: %+v", fetched.Protection)
	}

	exists, err := repo.ExistsByShortCode(ctx, "abc1234")
	if err != nil || !exists {
		t.Errorf("ExistsByShortCode() = %v, %v", exists, err)
	}

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestRepository_NoProtection(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	q := &QRCode{ID: "qr2", ShortCode: "plain01", Name: "Plain", Status: StatusActive, Config: testConfig(), CreatedBy: "user1"}
	if err := repo.Create(ctx, q); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	fetched, err := repo.GetByID(ctx, "qr2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if fetched.Protection != nil || fetched.ExpiresAt != nil {
		t.Errorf("Expected no protection and no expiry, got %+v", fetched)
	}
}

func TestRepository_ExpireDue(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-time.Hour).Unix()
	future := now.Add(time.Hour).Unix()
	for _, q := range []*QRCode{
		{ID: "a", ShortCode: "aaaa", Name: "a", Status: StatusActive, Config: testConfig(), CreatedBy: "u", ExpiresAt: &past},
		{ID: "b", ShortCode: "bbbb", Name: "b", Status: StatusActive, Config: testConfig(), CreatedBy: "u", ExpiresAt: &future},
		{ID: "c", ShortCode: "cccc", Name: "c", Status: StatusActive, Config: testConfig(), CreatedBy: "u"},
	} {
		if err := repo.Create(ctx, q); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	codes, err := repo.ExpireDue(ctx, now)
	if err != nil {
		t.Fatalf("ExpireDue() error = %v", err)
	}
	if len(codes) != 1 || codes[0] != "aaaa" {
		t.Errorf("Expected [aaaa], got %v", codes)
	}

	a, _ := repo.GetByID(ctx, "a")
	b, _ := repo.GetByID(ctx, "b")
	if a.Status != StatusExpired || b.Status != StatusActive {
		t.Errorf("Unexpected statuses a=%s b=%s", a.Status, b.Status)
	}

	codes, err = repo.ExpireDue(ctx, now)
	if err != nil || len(codes) != 0 {
		t.Errorf("Second sweep should be empty, got %v, %v", codes, err)
	}
}
