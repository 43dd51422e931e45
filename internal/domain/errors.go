package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongState はACTIVE状態を要求する操作が別の状態で呼ばれた場合のエラー。
	ErrWrongState = errors.New("operation requires active session")

	// ErrNoActiveSession はセッション鍵が存在しない状態で鍵を要求した場合のエラー。
	ErrNoActiveSession = errors.New("no active session key")

	// ErrComponentNotReady はセットアップ未完了のコンポーネント宛イベントを受けた場合のエラー。
	ErrComponentNotReady = errors.New("component has no acknowledged setup in this session")

	// ErrDecryptionFailed は現在のセッション鍵で暗号文を復号できなかった場合のエラー。
	// 古いセッションの暗号文・破損データはこのエラーになり、再試行しても成功しない。
	ErrDecryptionFailed = errors.New("decryption failed with current session key")

	// ErrTransportTimeout はセットアップ応答が期限内に届かなかった場合のエラー。
	ErrTransportTimeout = errors.New("setup acknowledgment timed out")

	// ErrInvalidKeyBits は鍵長が2048でも4096でもない場合のエラー。
	ErrInvalidKeyBits = errors.New("key bits must be 2048 or 4096")

	// ErrUnknownRequest は未知または期限切れのリクエストIDに対する応答を受けた場合のエラー。
	ErrUnknownRequest = errors.New("unknown setup request")

	// ErrInvalidComponent はコンポーネントIDの形式が不正な場合のエラー。
	ErrInvalidComponent = errors.New("invalid component ID")
)

// SetupRejectedError はプラットフォームが公開鍵セットアップを拒否した場合のエラー。
// プラットフォームが返した結果コードと説明を保持する。
type SetupRejectedError struct {
	ComponentID string
	Code        string
	Description string
}

// Error はerrorインターフェースを実装する。
func (e *SetupRejectedError) Error() string {
	return fmt.Sprintf("platform rejected key setup for component %s: %s (%s)",
		e.ComponentID, e.Code, e.Description)
}
