// Package domain はドメインモデルとビジネスルールを定義する。
package domain

// ApplicationState はプラットフォームから通知されるアプリケーション状態を表す。
type ApplicationState string

const (
	// StateInitialize は起動直後の初期化状態を表す。
	StateInitialize ApplicationState = "INITIALIZE"
	// StateUnavailable はサービス提供不可の状態を表す。
	StateUnavailable ApplicationState = "UNAVAILABLE"
	// StateAvailable はセッション待機中の状態を表す。
	StateAvailable ApplicationState = "AVAILABLE"
	// StateActive は旅客セッションを処理中の状態を表す。
	StateActive ApplicationState = "ACTIVE"
	// StateStopped は停止状態を表す。
	StateStopped ApplicationState = "STOPPED"
)

// IsValid は既知のアプリケーション状態かどうかを返す。
func (s ApplicationState) IsValid() bool {
	switch s {
	case StateInitialize, StateUnavailable, StateAvailable, StateActive, StateStopped:
		return true
	}
	return false
}

// KeyState はセッション鍵ライフサイクルの内部状態を表す。
type KeyState string

const (
	// KeyStateNone は鍵が存在しない状態。初期状態であり、ACTIVE離脱後に必ず戻る。
	KeyStateNone KeyState = "no_key"
	// KeyStatePendingSetup は鍵を生成済みで、セットアップ応答を待っている状態。
	KeyStatePendingSetup KeyState = "key_pending_setup"
	// KeyStateActive は全コンポーネントのセットアップが完了し、復号可能な状態。
	KeyStateActive KeyState = "key_active"
)
