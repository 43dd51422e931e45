// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"session-key-agent/internal/domain"
)

// HandshakeRecordModel はgorm用のモデル定義。
type HandshakeRecordModel struct {
	ID          string    `gorm:"type:char(36);primaryKey"`
	SessionID   string    `gorm:"type:varchar(64);index:idx_session_id"`
	ComponentID string    `gorm:"type:varchar(64);index:idx_component_id"`
	Fingerprint string    `gorm:"type:varchar(64)"`
	KeyBits     int       `gorm:"not null;default:0"`
	Operation   string    `gorm:"type:varchar(32);not null;index:idx_operation"`
	Outcome     string    `gorm:"type:varchar(16);not null"`
	Description string    `gorm:"type:varchar(255)"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime;index:idx_created_at"`
}

// TableName はテーブル名を返す。
func (HandshakeRecordModel) TableName() string {
	return "handshake_records"
}

// BeforeCreate はレコード作成前にUUIDを生成する。
func (m *HandshakeRecordModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}

// toDomain はモデルをドメインエンティティに変換する。
func (m *HandshakeRecordModel) toDomain() *domain.HandshakeRecord {
	return &domain.HandshakeRecord{
		ID:          m.ID,
		SessionID:   m.SessionID,
		ComponentID: m.ComponentID,
		Fingerprint: m.Fingerprint,
		KeyBits:     m.KeyBits,
		Operation:   m.Operation,
		Outcome:     m.Outcome,
		Description: m.Description,
		CreatedAt:   m.CreatedAt,
	}
}

// HandshakeRepository は監査記録のデータアクセスを提供する。
type HandshakeRepository struct {
	db *gorm.DB
}

// NewHandshakeRepository は新しいHandshakeRepositoryを生成する。
func NewHandshakeRepository(db *gorm.DB) *HandshakeRepository {
	return &HandshakeRepository{db: db}
}

// Create は監査記録を保存する。
func (r *HandshakeRepository) Create(ctx context.Context, record *domain.HandshakeRecord) error {
	model := &HandshakeRecordModel{
		ID:          record.ID,
		SessionID:   record.SessionID,
		ComponentID: record.ComponentID,
		Fingerprint: record.Fingerprint,
		KeyBits:     record.KeyBits,
		Operation:   record.Operation,
		Outcome:     record.Outcome,
		Description: record.Description,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create handshake record",
			"operation", record.Operation,
			"session_id", record.SessionID,
			"error", err,
		)
		return err
	}
	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	return nil
}

// FindBySessionID は指定セッションの監査記録を新しい順に取得する。
func (r *HandshakeRepository) FindBySessionID(ctx context.Context, sessionID string) ([]*domain.HandshakeRecord, error) {
	var models []HandshakeRecordModel
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find handshake records by session_id",
			"session_id", sessionID,
			"error", err,
		)
		return nil, err
	}
	return toDomainList(models), nil
}

// FindRecent は監査記録を新しい順に最大limit件取得する。
func (r *HandshakeRepository) FindRecent(ctx context.Context, limit int) ([]*domain.HandshakeRecord, error) {
	var models []HandshakeRecordModel
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find recent handshake records",
			"limit", limit,
			"error", err,
		)
		return nil, err
	}
	return toDomainList(models), nil
}

// CountByOutcome は結果ごとの監査記録数を返す。
func (r *HandshakeRepository) CountByOutcome(ctx context.Context, outcome string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&HandshakeRecordModel{}).
		Where("outcome = ?", outcome).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count handshake records",
			"outcome", outcome,
			"error", err,
		)
		return 0, err
	}
	return count, nil
}

func toDomainList(models []HandshakeRecordModel) []*domain.HandshakeRecord {
	records := make([]*domain.HandshakeRecord, len(models))
	for i := range models {
		records[i] = models[i].toDomain()
	}
	return records
}
