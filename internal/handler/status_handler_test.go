package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"session-key-agent/config"
	"session-key-agent/internal/domain"
	"session-key-agent/internal/protocol"
	"session-key-agent/internal/usecase"
)

// mockTransport はテスト用のモックトランスポート。
type mockTransport struct {
	sendErr error
}

func (m *mockTransport) SendDirective(ctx context.Context, directive protocol.Directive) error {
	return m.sendErr
}

// mockHandshakeLister はテスト用のモック監査記録リスト。
type mockHandshakeLister struct {
	findRecentResult []*domain.HandshakeRecord
	findRecentErr    error
}

func (m *mockHandshakeLister) FindRecent(ctx context.Context, limit int) ([]*domain.HandshakeRecord, error) {
	return m.findRecentResult, m.findRecentErr
}

func newTestRouter(service *usecase.SessionService, lister *mockHandshakeLister) http.Handler {
	h := NewStatusHandler(service, lister)
	return NewRouter(h, &config.Config{})
}

func TestGetStatus_NoSession(t *testing.T) {
	service := usecase.NewSessionService(&mockTransport{}, nil, "kiosk-test", 2048, nil, nil)
	router := newTestRouter(service, &mockHandshakeLister{})

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.KeyState != string(domain.KeyStateNone) {
		t.Errorf("want key state %s, got %s", domain.KeyStateNone, resp.KeyState)
	}
	if resp.Key != nil {
		t.Error("want no key in response")
	}
}

func TestGetStatus_ActiveSession(t *testing.T) {
	ctx := context.Background()
	service := usecase.NewSessionService(&mockTransport{}, nil, "kiosk-test", 2048, nil, nil)
	if err := service.OnApplicationStateChanged(ctx, domain.StateActive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	router := newTestRouter(service, &mockHandshakeLister{})

	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ApplicationState != string(domain.StateActive) {
		t.Errorf("want application state ACTIVE, got %s", resp.ApplicationState)
	}
	if resp.SessionID == "" {
		t.Error("want session ID in response")
	}
	if resp.Key == nil {
		t.Fatal("want key metadata in response")
	}
	if resp.Key.Bits != 2048 {
		t.Errorf("want 2048 bits, got %d", resp.Key.Bits)
	}
	if resp.Key.Fingerprint == "" {
		t.Error("want fingerprint in response")
	}
}

func TestListHandshakes(t *testing.T) {
	service := usecase.NewSessionService(&mockTransport{}, nil, "kiosk-test", 2048, nil, nil)
	lister := &mockHandshakeLister{
		findRecentResult: []*domain.HandshakeRecord{
			{
				ID:          "rec-1",
				SessionID:   "session-1",
				ComponentID: "42",
				Operation:   domain.OpSetup,
				Outcome:     domain.OutcomeSuccess,
				CreatedAt:   time.Now(),
			},
		},
	}
	router := newTestRouter(service, lister)

	req := httptest.NewRequest(http.MethodGet, "/v1/handshakes?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	var resp HandshakeListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Handshakes) != 1 {
		t.Fatalf("want 1 handshake, got %d", len(resp.Handshakes))
	}
	if resp.Handshakes[0].Operation != domain.OpSetup {
		t.Errorf("want operation %s, got %s", domain.OpSetup, resp.Handshakes[0].Operation)
	}
}

func TestListHandshakes_InvalidLimit(t *testing.T) {
	service := usecase.NewSessionService(&mockTransport{}, nil, "kiosk-test", 2048, nil, nil)
	router := newTestRouter(service, &mockHandshakeLister{})

	for _, limit := range []string{"0", "-1", "501", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/handshakes?limit="+limit, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: want 400, got %d", limit, rec.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	service := usecase.NewSessionService(&mockTransport{}, nil, "kiosk-test", 2048, nil, nil)
	router := newTestRouter(service, &mockHandshakeLister{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}
