// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"session-key-agent/internal/domain"
	"session-key-agent/internal/usecase"
	"session-key-agent/pkg/httputil"
)

const (
	defaultHandshakeLimit = 50
	maxHandshakeLimit     = 500
)

// HandshakeLister は監査記録参照のインターフェース。
type HandshakeLister interface {
	FindRecent(ctx context.Context, limit int) ([]*domain.HandshakeRecord, error)
}

// StatusHandler はエージェントのローカル状態APIのハンドラ。
type StatusHandler struct {
	service *usecase.SessionService
	records HandshakeLister
}

// NewStatusHandler は新しいStatusHandlerを生成する。
func NewStatusHandler(service *usecase.SessionService, records HandshakeLister) *StatusHandler {
	return &StatusHandler{service: service, records: records}
}

// KeyStatusResponse はセッション鍵メタデータのレスポンス形式。
// フィンガープリントのみを公開し、鍵材料は決して返さない。
type KeyStatusResponse struct {
	Fingerprint string `json:"fingerprint"`
	Bits        int    `json:"bits"`
	CreatedAt   string `json:"created_at"`
	AgeSeconds  int64  `json:"age_seconds"`
}

// StatusResponse はライフサイクル状態のレスポンス形式。
type StatusResponse struct {
	ApplicationState string             `json:"application_state"`
	KeyState         string             `json:"key_state"`
	SessionID        string             `json:"session_id,omitempty"`
	Key              *KeyStatusResponse `json:"key,omitempty"`
}

// HandshakeResponse は監査記録のレスポンス形式。
type HandshakeResponse struct {
	ID          string `json:"id"`
	SessionID   string `json:"session_id"`
	ComponentID string `json:"component_id,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`
	KeyBits     int    `json:"key_bits,omitempty"`
	Operation   string `json:"operation"`
	Outcome     string `json:"outcome"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// HandshakeListResponse は監査記録一覧のレスポンス形式。
type HandshakeListResponse struct {
	Handshakes []HandshakeResponse `json:"handshakes"`
}

// GetStatus はライフサイクルの現在状態を返す。
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.service.Status()

	resp := StatusResponse{
		ApplicationState: string(status.ApplicationState),
		KeyState:         string(status.KeyState),
		SessionID:        status.SessionID,
	}
	if status.Key != nil {
		resp.Key = &KeyStatusResponse{
			Fingerprint: status.Key.Fingerprint,
			Bits:        status.Key.Bits,
			CreatedAt:   status.Key.CreatedAt.Format(time.RFC3339),
			AgeSeconds:  int64(time.Since(status.Key.CreatedAt).Seconds()),
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// ListHandshakes は監査記録を新しい順に返す。
func (h *StatusHandler) ListHandshakes(w http.ResponseWriter, r *http.Request) {
	limit := defaultHandshakeLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 || n > maxHandshakeLimit {
			httputil.Error(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := h.records.FindRecent(r.Context(), limit)
	if err != nil {
		httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}

	resp := HandshakeListResponse{Handshakes: make([]HandshakeResponse, len(records))}
	for i, rec := range records {
		resp.Handshakes[i] = HandshakeResponse{
			ID:          rec.ID,
			SessionID:   rec.SessionID,
			ComponentID: rec.ComponentID,
			Fingerprint: rec.Fingerprint,
			KeyBits:     rec.KeyBits,
			Operation:   rec.Operation,
			Outcome:     rec.Outcome,
			Description: rec.Description,
			CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
		}
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Healthz は死活確認に応答する。
func (h *StatusHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
