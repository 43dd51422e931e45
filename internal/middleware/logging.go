// Package middleware はHTTPミドルウェアと監査ログを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"
)

// AuditLog は監査ログの構造体。
type AuditLog struct {
	Operation   string `json:"operation"`
	SessionID   string `json:"session_id"`
	ComponentID string `json:"component_id,omitempty"`
	Result      string `json:"result"`
	Timestamp   string `json:"timestamp"`
}

// WriteAuditLog は鍵ライフサイクル操作の監査ログを出力する。
// 平文・鍵材料は決して渡さないこと。
func WriteAuditLog(ctx context.Context, operation string, sessionID string, componentID string, result string) {
	slog.InfoContext(ctx, "key lifecycle operation",
		"operation", operation,
		"session_id", sessionID,
		"component_id", componentID,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	)
}
