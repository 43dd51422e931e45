package repository

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"session-key-agent/internal/domain"
)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&HandshakeRecordModel{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestHandshakeRepository_CreateAssignsID(t *testing.T) {
	ctx := context.Background()
	repo := NewHandshakeRepository(setupTestDB(t))

	record := &domain.HandshakeRecord{
		SessionID:   "session-1",
		ComponentID: "42",
		Fingerprint: "abc123",
		KeyBits:     2048,
		Operation:   domain.OpSetup,
		Outcome:     domain.OutcomeSuccess,
	}
	if err := repo.Create(ctx, record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.ID == "" {
		t.Error("want generated ID, got empty")
	}
	if record.CreatedAt.IsZero() {
		t.Error("want created_at to be set")
	}
}

func TestHandshakeRepository_FindBySessionID(t *testing.T) {
	ctx := context.Background()
	repo := NewHandshakeRepository(setupTestDB(t))

	for _, rec := range []*domain.HandshakeRecord{
		{SessionID: "session-1", Operation: domain.OpSessionStart, Outcome: domain.OutcomeSuccess},
		{SessionID: "session-1", ComponentID: "42", Operation: domain.OpSetup, Outcome: domain.OutcomeSuccess},
		{SessionID: "session-2", Operation: domain.OpSessionStart, Outcome: domain.OutcomeSuccess},
	} {
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := repo.FindBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records for session-1, got %d", len(records))
	}
	for _, rec := range records {
		if rec.SessionID != "session-1" {
			t.Errorf("want session-1, got %s", rec.SessionID)
		}
	}
}

func TestHandshakeRepository_FindRecentHonorsLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewHandshakeRepository(setupTestDB(t))

	for i := 0; i < 5; i++ {
		rec := &domain.HandshakeRecord{
			SessionID: "session-1",
			Operation: domain.OpDecrypt,
			Outcome:   domain.OutcomeSuccess,
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	records, err := repo.FindRecent(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("want 3 records, got %d", len(records))
	}
}

func TestHandshakeRepository_CountByOutcome(t *testing.T) {
	ctx := context.Background()
	repo := NewHandshakeRepository(setupTestDB(t))

	for _, outcome := range []string{domain.OutcomeSuccess, domain.OutcomeSuccess, domain.OutcomeFailed} {
		rec := &domain.HandshakeRecord{
			SessionID: "session-1",
			Operation: domain.OpSetupAck,
			Outcome:   outcome,
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	count, err := repo.CountByOutcome(ctx, domain.OutcomeFailed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Errorf("want 1 failed record, got %d", count)
	}
}
