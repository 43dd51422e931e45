// Package infra は外部サービスとの接続を提供する。
package infra

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"session-key-agent/config"
	"session-key-agent/internal/repository"
)

// NewDB はgormによるローカルSQLiteデータベース接続を初期化する。
// キオスク端末上のファイルストアであり、スキーマは自動マイグレーションする。
func NewDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if cfg.OtelEnabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return nil, fmt.Errorf("installing tracing plugin: %w", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターのため接続数を絞る
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&repository.HandshakeRecordModel{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return db, nil
}
