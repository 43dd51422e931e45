package domain

import "time"

// 監査記録の操作種別。
const (
	// OpSessionStart はACTIVE遷移による鍵生成を表す。
	OpSessionStart = "SESSION_START"
	// OpSetup は公開鍵セットアップの送信を表す。
	OpSetup = "SETUP"
	// OpSetupAck はセットアップ応答の受信を表す。
	OpSetupAck = "SETUP_ACK"
	// OpDecrypt は暗号化イベントの復号を表す。
	OpDecrypt = "DECRYPT"
	// OpTeardown はACTIVE離脱による鍵破棄を表す。
	OpTeardown = "TEARDOWN"
)

// 監査記録の結果。
const (
	// OutcomeSuccess は成功を表す。
	OutcomeSuccess = "SUCCESS"
	// OutcomeFailed は失敗を表す。
	OutcomeFailed = "FAILED"
)

// HandshakeRecord は鍵ライフサイクル操作の監査記録を表す。
// 公開鍵のフィンガープリントのみを保持し、秘密鍵材料は決して含めない。
type HandshakeRecord struct {
	ID          string
	SessionID   string
	ComponentID string
	Fingerprint string
	KeyBits     int
	Operation   string
	Outcome     string
	Description string
	CreatedAt   time.Time
}
