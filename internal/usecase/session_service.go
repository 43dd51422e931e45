// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"session-key-agent/internal/domain"
	"session-key-agent/internal/middleware"
	"session-key-agent/internal/protocol"
)

// PlatformTransport はプラットフォームへのディレクティブ送信のインターフェース。
type PlatformTransport interface {
	SendDirective(ctx context.Context, directive protocol.Directive) error
}

// HandshakeRepository は監査記録のインターフェース。
type HandshakeRepository interface {
	Create(ctx context.Context, record *domain.HandshakeRecord) error
}

// PlaintextSink は復号済み平文の受け渡し先。
// 平文はログ・監査記録には決して含めず、ここへ渡すだけとする。
type PlaintextSink func(componentID string, plaintext []byte)

// SessionStatus はライフサイクルの現在状態のスナップショット。
type SessionStatus struct {
	ApplicationState domain.ApplicationState
	KeyState         domain.KeyState
	SessionID        string
	Key              *domain.KeyMetadata
}

// SessionService はセッション鍵のライフサイクルを管理する。
//
// 鍵の生成→公開→利用→破棄のサイクルをアプリケーション状態で厳密にゲートする
// 明示的な状態機械であり、すべての状態変更は1つのミューテックスで直列化する。
// ACTIVE離脱時の鍵破棄は無条件・同期的に行い、進行中のセットアップや
// 鍵生成の完了を待たない（世代カウンタで遅延した結果を破棄する）。
type SessionService struct {
	transport  PlatformTransport
	audit      HandshakeRepository
	deviceID   string
	keyBits    int
	components []string
	sink       PlaintextSink

	mu        sync.Mutex
	appState  domain.ApplicationState
	keyState  domain.KeyState
	epoch     uint64
	sessionID string
	key       *domain.SessionKeyPair
	pending   map[string]string // requestID → componentID
	ready     map[string]bool   // componentID → セットアップ完了
}

// NewSessionService は新しいSessionServiceを生成する。
// componentsには暗号化対応コンポーネントのIDを渡す。ACTIVE遷移時に
// 各コンポーネントへ自動的にセットアップを送信する。
func NewSessionService(
	transport PlatformTransport,
	audit HandshakeRepository,
	deviceID string,
	keyBits int,
	components []string,
	sink PlaintextSink,
) *SessionService {
	return &SessionService{
		transport:  transport,
		audit:      audit,
		deviceID:   deviceID,
		keyBits:    keyBits,
		components: components,
		sink:       sink,
		appState:   domain.StateInitialize,
		keyState:   domain.KeyStateNone,
		pending:    make(map[string]string),
		ready:      make(map[string]bool),
	}
}

// OnApplicationStateChanged はアプリケーション状態の遷移を処理する。
// 同じ状態への再通知は冪等（鍵の再生成は行わない）。
// ACTIVEへの遷移で鍵生成とセットアップ送信を開始し、ACTIVEからの離脱で
// 宛先状態によらず鍵を即時破棄する。
func (s *SessionService) OnApplicationStateChanged(ctx context.Context, newState domain.ApplicationState) error {
	if !newState.IsValid() {
		return fmt.Errorf("unknown application state %q", newState)
	}

	s.mu.Lock()
	if newState == s.appState {
		s.mu.Unlock()
		return nil
	}
	prev := s.appState
	s.appState = newState

	if prev == domain.StateActive {
		// 離脱時の破棄は他のどの処理よりも優先する
		sessionID := s.sessionID
		s.teardownLocked()
		s.mu.Unlock()
		middleware.WriteAuditLog(ctx, domain.OpTeardown, sessionID, "", domain.OutcomeSuccess)
		s.writeAuditRecord(ctx, &domain.HandshakeRecord{
			SessionID: sessionID,
			Operation: domain.OpTeardown,
			Outcome:   domain.OutcomeSuccess,
		})
		slog.InfoContext(ctx, "session key destroyed",
			"session_id", sessionID,
			"from", prev,
			"to", newState,
		)
		return nil
	}

	if newState != domain.StateActive {
		s.mu.Unlock()
		return nil
	}

	// ACTIVEへの遷移: 新しいセッションを開始する
	s.epoch++
	epoch := s.epoch
	s.sessionID = uuid.New().String()
	sessionID := s.sessionID
	s.keyState = domain.KeyStatePendingSetup
	s.key = nil
	s.pending = make(map[string]string)
	s.ready = make(map[string]bool)
	s.mu.Unlock()

	// 鍵生成は時間がかかるためロックの外で行う。
	// その間に離脱が起きた場合はepochが進み、生成結果は破棄される。
	keyPair, err := domain.GenerateSessionKeyPair(s.keyBits)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.keyState = domain.KeyStateNone
		}
		s.mu.Unlock()
		middleware.WriteAuditLog(ctx, domain.OpSessionStart, sessionID, "", domain.OutcomeFailed)
		return fmt.Errorf("starting session %s: %w", sessionID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		keyPair.Zeroize()
		slog.InfoContext(ctx, "discarded key generated for ended session", "session_id", sessionID)
		return nil
	}
	s.key = keyPair
	components := s.components
	s.mu.Unlock()

	middleware.WriteAuditLog(ctx, domain.OpSessionStart, sessionID, "", domain.OutcomeSuccess)
	s.writeAuditRecord(ctx, &domain.HandshakeRecord{
		SessionID:   sessionID,
		Fingerprint: keyPair.Fingerprint(),
		KeyBits:     keyPair.Bits(),
		Operation:   domain.OpSessionStart,
		Outcome:     domain.OutcomeSuccess,
	})
	slog.InfoContext(ctx, "session key generated",
		"session_id", sessionID,
		"fingerprint", keyPair.Fingerprint(),
		"bits", keyPair.Bits(),
	)

	// 登録済みコンポーネントへセットアップを送信する
	for _, componentID := range components {
		if _, err := s.SetupComponent(ctx, componentID); err != nil {
			slog.ErrorContext(ctx, "component setup failed",
				"session_id", sessionID,
				"component_id", componentID,
				"error", err,
			)
		}
	}
	return nil
}

// SetupComponent は公開鍵を載せたセットアップディレクティブを送信する。
// ACTIVE状態（KeyPendingSetupまたはKeyActive）でのみ有効。
// 戻り値は応答の対応付けに使うリクエストID。
func (s *SessionService) SetupComponent(ctx context.Context, componentID string) (string, error) {
	if componentID == "" {
		return "", domain.ErrInvalidComponent
	}

	s.mu.Lock()
	if s.appState != domain.StateActive {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: application state is %s", domain.ErrWrongState, s.appState)
	}
	if s.key == nil {
		s.mu.Unlock()
		return "", domain.ErrNoActiveSession
	}

	publicKey, err := s.key.PublicKeyBase64()
	if err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("exporting public key: %w", err)
	}

	epoch := s.epoch
	sessionID := s.sessionID
	fingerprint := s.key.Fingerprint()
	bits := s.key.Bits()
	requestID := uuid.New().String()
	s.pending[requestID] = componentID
	delete(s.ready, componentID)
	directive := protocol.NewSetupDirective(requestID, componentID, s.deviceID, publicKey)
	s.mu.Unlock()

	if err := s.transport.SendDirective(ctx, directive); err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			delete(s.pending, requestID)
		}
		s.mu.Unlock()
		middleware.WriteAuditLog(ctx, domain.OpSetup, sessionID, componentID, domain.OutcomeFailed)
		return "", fmt.Errorf("sending setup directive: %w", err)
	}

	middleware.WriteAuditLog(ctx, domain.OpSetup, sessionID, componentID, domain.OutcomeSuccess)
	s.writeAuditRecord(ctx, &domain.HandshakeRecord{
		SessionID:   sessionID,
		ComponentID: componentID,
		Fingerprint: fingerprint,
		KeyBits:     bits,
		Operation:   domain.OpSetup,
		Outcome:     domain.OutcomeSuccess,
	})
	return requestID, nil
}

// HandleAck はセットアップディレクティブへの応答を処理する。
// 成功応答でコンポーネントを復号可能にし、enableディレクティブを送信する。
// 失敗応答は鍵を破棄してSetupRejectedError（タイムアウトはErrTransportTimeout）を返す。
// セッション終了後に届いた遅延応答は黙って破棄する。
func (s *SessionService) HandleAck(ctx context.Context, ack protocol.Ack) error {
	s.mu.Lock()
	componentID, ok := s.pending[ack.RequestID]
	if !ok {
		s.mu.Unlock()
		slog.DebugContext(ctx, "discarding unmatched ack", "request_id", ack.RequestID, "code", ack.Code)
		return nil
	}
	delete(s.pending, ack.RequestID)
	sessionID := s.sessionID
	fingerprint := ""
	bits := 0
	if s.key != nil {
		fingerprint = s.key.Fingerprint()
		bits = s.key.Bits()
	}

	if ack.Code != protocol.AckOK {
		// 拒否された鍵は使わない。破棄して報告し、再試行は呼び出し側に委ねる。
		s.teardownKeyLocked()
		s.mu.Unlock()

		middleware.WriteAuditLog(ctx, domain.OpSetupAck, sessionID, componentID, domain.OutcomeFailed)
		s.writeAuditRecord(ctx, &domain.HandshakeRecord{
			SessionID:   sessionID,
			ComponentID: componentID,
			Fingerprint: fingerprint,
			KeyBits:     bits,
			Operation:   domain.OpSetupAck,
			Outcome:     domain.OutcomeFailed,
			Description: ack.Code + ": " + ack.Description,
		})

		if ack.Code == protocol.AckTimeout {
			return fmt.Errorf("setup for component %s: %w", componentID, domain.ErrTransportTimeout)
		}
		return &domain.SetupRejectedError{
			ComponentID: componentID,
			Code:        ack.Code,
			Description: ack.Description,
		}
	}

	s.ready[componentID] = true
	if len(s.pending) == 0 {
		s.keyState = domain.KeyStateActive
	}
	enable := protocol.NewEnableDirective(uuid.New().String(), componentID, s.deviceID)
	s.mu.Unlock()

	middleware.WriteAuditLog(ctx, domain.OpSetupAck, sessionID, componentID, domain.OutcomeSuccess)
	s.writeAuditRecord(ctx, &domain.HandshakeRecord{
		SessionID:   sessionID,
		ComponentID: componentID,
		Fingerprint: fingerprint,
		KeyBits:     bits,
		Operation:   domain.OpSetupAck,
		Outcome:     domain.OutcomeSuccess,
	})

	// セットアップ完了後にデータ捕捉を有効化する
	if err := s.transport.SendDirective(ctx, enable); err != nil {
		return fmt.Errorf("sending enable directive: %w", err)
	}
	return nil
}

// HandleEncryptedEvent は暗号化データイベントを復号する。
// 現在のセッションでセットアップ応答が完了したコンポーネント宛の
// イベントのみ復号を試みる。復号失敗は再試行しても成功しないため、
// そのまま報告する。
func (s *SessionService) HandleEncryptedEvent(ctx context.Context, event protocol.DataPresentEvent) ([]byte, error) {
	s.mu.Lock()
	if s.keyState != domain.KeyStateActive || s.key == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("component %s: %w", event.ComponentID, domain.ErrComponentNotReady)
	}
	if !s.ready[event.ComponentID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("component %s: %w", event.ComponentID, domain.ErrComponentNotReady)
	}
	sessionID := s.sessionID
	fingerprint := s.key.Fingerprint()
	bits := s.key.Bits()

	record, ok := event.FirstEncryptedRecord()
	if !ok {
		s.mu.Unlock()
		s.auditDecrypt(ctx, sessionID, event.ComponentID, fingerprint, bits, domain.OutcomeFailed, "no encrypted data record")
		return nil, fmt.Errorf("%w: event carries no encrypted record", domain.ErrDecryptionFailed)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(record.Data)
	if err != nil {
		s.mu.Unlock()
		s.auditDecrypt(ctx, sessionID, event.ComponentID, fingerprint, bits, domain.OutcomeFailed, "malformed base64")
		return nil, fmt.Errorf("%w: decoding ciphertext: %v", domain.ErrDecryptionFailed, err)
	}

	// 復号は短時間で終わるためロック内で行い、破棄との競合を防ぐ
	plaintext, err := s.key.Decrypt(ciphertext)
	s.mu.Unlock()
	if err != nil {
		s.auditDecrypt(ctx, sessionID, event.ComponentID, fingerprint, bits, domain.OutcomeFailed, "ciphertext does not match session key")
		return nil, fmt.Errorf("component %s: %w", event.ComponentID, err)
	}

	s.auditDecrypt(ctx, sessionID, event.ComponentID, fingerprint, bits, domain.OutcomeSuccess, "")
	if s.sink != nil {
		s.sink(event.ComponentID, plaintext)
	}
	return plaintext, nil
}

// RenewKey はACTIVE状態のまま鍵ペアを作り直す。
// セットアップ拒否後に呼び出し側が新しい鍵で再試行するための操作。
// 古い鍵は即時破棄し、登録済みコンポーネントへセットアップを再送する。
func (s *SessionService) RenewKey(ctx context.Context) error {
	s.mu.Lock()
	if s.appState != domain.StateActive {
		s.mu.Unlock()
		return fmt.Errorf("%w: application state is %s", domain.ErrWrongState, s.appState)
	}
	s.teardownKeyLocked()
	s.epoch++
	epoch := s.epoch
	sessionID := s.sessionID
	s.keyState = domain.KeyStatePendingSetup
	s.mu.Unlock()

	keyPair, err := domain.GenerateSessionKeyPair(s.keyBits)
	if err != nil {
		s.mu.Lock()
		if s.epoch == epoch {
			s.keyState = domain.KeyStateNone
		}
		s.mu.Unlock()
		return fmt.Errorf("renewing session key: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		keyPair.Zeroize()
		return nil
	}
	s.key = keyPair
	components := s.components
	s.mu.Unlock()

	slog.InfoContext(ctx, "session key renewed",
		"session_id", sessionID,
		"fingerprint", keyPair.Fingerprint(),
	)
	for _, componentID := range components {
		if _, err := s.SetupComponent(ctx, componentID); err != nil {
			slog.ErrorContext(ctx, "component setup failed",
				"session_id", sessionID,
				"component_id", componentID,
				"error", err,
			)
		}
	}
	return nil
}

// Status は現在のライフサイクル状態のスナップショットを返す。
func (s *SessionService) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := SessionStatus{
		ApplicationState: s.appState,
		KeyState:         s.keyState,
		SessionID:        s.sessionID,
	}
	if s.key != nil {
		meta := s.key.Metadata()
		status.Key = &meta
	}
	return status
}

// teardownLocked はセッション全体を破棄する。呼び出し元がロックを保持していること。
// 既にKeyStateNoneの場合も安全に呼び出せる。
func (s *SessionService) teardownLocked() {
	s.teardownKeyLocked()
	s.sessionID = ""
}

// teardownKeyLocked は鍵材料と進行中のハンドシェイクを破棄する。
// epochを進めることで、進行中の鍵生成や遅延応答の結果を無効化する。
func (s *SessionService) teardownKeyLocked() {
	s.epoch++
	if s.key != nil {
		s.key.Zeroize()
		s.key = nil
	}
	s.pending = make(map[string]string)
	s.ready = make(map[string]bool)
	s.keyState = domain.KeyStateNone
}

// writeAuditRecord は監査記録を保存する。保存失敗はログに残すのみで、
// 鍵の破棄を含むライフサイクル処理を妨げない。
func (s *SessionService) writeAuditRecord(ctx context.Context, record *domain.HandshakeRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "failed to persist audit record",
			"operation", record.Operation,
			"session_id", record.SessionID,
			"error", err,
		)
	}
}

func (s *SessionService) auditDecrypt(ctx context.Context, sessionID, componentID, fingerprint string, bits int, outcome, description string) {
	middleware.WriteAuditLog(ctx, domain.OpDecrypt, sessionID, componentID, outcome)
	s.writeAuditRecord(ctx, &domain.HandshakeRecord{
		SessionID:   sessionID,
		ComponentID: componentID,
		Fingerprint: fingerprint,
		KeyBits:     bits,
		Operation:   domain.OpDecrypt,
		Outcome:     outcome,
		Description: description,
	})
}
