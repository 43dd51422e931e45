// Package protocol はプラットフォームとのワイヤ契約(JSON)を定義する。
package protocol

import "time"

// ディレクティブ名。
const (
	// DirectiveSetup は公開鍵をプラットフォームへ登録するディレクティブ。
	DirectiveSetup = "setup"
	// DirectiveEnable はセットアップ完了後にデータ捕捉を有効化するディレクティブ。
	DirectiveEnable = "enable"
)

// 応答コード。
const (
	// AckOK は成功を表す。
	AckOK = "OK"
	// AckInvalidParameter は鍵材料の形式不正などパラメータ不正を表す。
	AckInvalidParameter = "INVALID_PARAMETER"
	// AckInternalError はプラットフォーム内部エラーを表す。
	AckInternalError = "INTERNAL_ERROR"
	// AckWrongApplicationState はプラットフォーム側の状態不一致を表す。
	AckWrongApplicationState = "WRONG_APPLICATION_STATE"
	// AckTimeout は応答が届かなかった場合にトランスポートが合成するコード。
	AckTimeout = "TIMEOUT"
)

// データレコードの分類タグ。
const (
	// DataTypePublicKey は公開鍵レコードであることを示すタグ。
	DataTypePublicKey = "KEY_RSA_PUBLIC"
	// DataTypeEncrypted は暗号化済みデータであることを示すタグ。
	DataTypeEncrypted = "ENCRYPTED"
	// EncodingBase64 はdataフィールドのエンコーディング。常にBase64。
	EncodingBase64 = "BASE64"
	// RecordStatusOK はレコードの正常ステータス。
	RecordStatusOK = "DS_OK"
)

// 受信メッセージの種別。
const (
	// MessageAck はディレクティブへの応答。
	MessageAck = "ack"
	// MessageDataPresent は非同期のデータ到着イベント。
	MessageDataPresent = "dataPresent"
	// MessageStateChange はアプリケーション状態遷移の通知。
	MessageStateChange = "stateChange"
)

// DirectiveMeta はディレクティブのメタデータブロック。
type DirectiveMeta struct {
	RequestID   string `json:"requestID"`
	ComponentID string `json:"componentID"`
	DeviceID    string `json:"deviceID"`
}

// DataRecord はペイロード内の1レコードを表す。
type DataRecord struct {
	Status    string   `json:"status,omitempty"`
	DataTypes []string `json:"dataTypes"`
	Data      string   `json:"data"`
	Encoding  string   `json:"encoding"`
}

// Payload はディレクティブ・イベントのペイロード。
type Payload struct {
	DataRecords []DataRecord `json:"dataRecords,omitempty"`
}

// Directive はプラットフォームへ送信するディレクティブ。
type Directive struct {
	Directive string        `json:"directive"`
	Meta      DirectiveMeta `json:"meta"`
	Payload   Payload       `json:"payload"`
}

// Ack はディレクティブへの応答。RequestIDで送信時のディレクティブと対応付ける。
type Ack struct {
	RequestID   string `json:"requestID"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

// DataPresentEvent はプラットフォームが機微データを捕捉・暗号化した際の非同期イベント。
type DataPresentEvent struct {
	ComponentID string    `json:"componentID"`
	SessionID   string    `json:"sessionID,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Event       string    `json:"event"`
	Payload     Payload   `json:"payload"`
}

// StateChange はアプリケーション状態遷移の通知イベント。
type StateChange struct {
	State string `json:"state"`
}

// Envelope は受信メッセージの外装。Typeに応じていずれか1つのフィールドが埋まる。
type Envelope struct {
	Type        string            `json:"type"`
	Ack         *Ack              `json:"ack,omitempty"`
	DataPresent *DataPresentEvent `json:"dataPresent,omitempty"`
	StateChange *StateChange      `json:"stateChange,omitempty"`
}

// NewSetupDirective は公開鍵レコードを載せたsetupディレクティブを構築する。
// dataはBase64エンコード済みのPEM公開鍵。
func NewSetupDirective(requestID, componentID, deviceID, data string) Directive {
	return Directive{
		Directive: DirectiveSetup,
		Meta: DirectiveMeta{
			RequestID:   requestID,
			ComponentID: componentID,
			DeviceID:    deviceID,
		},
		Payload: Payload{
			DataRecords: []DataRecord{
				{
					Status:    RecordStatusOK,
					DataTypes: []string{DataTypePublicKey},
					Data:      data,
					Encoding:  EncodingBase64,
				},
			},
		},
	}
}

// NewEnableDirective は空ペイロードのenableディレクティブを構築する。
func NewEnableDirective(requestID, componentID, deviceID string) Directive {
	return Directive{
		Directive: DirectiveEnable,
		Meta: DirectiveMeta{
			RequestID:   requestID,
			ComponentID: componentID,
			DeviceID:    deviceID,
		},
	}
}

// FirstEncryptedRecord はイベントから暗号化レコードを取り出す。
// 先頭タグがENCRYPTEDでBase64エンコードのレコードのみを有効とみなす。
func (e *DataPresentEvent) FirstEncryptedRecord() (DataRecord, bool) {
	for _, rec := range e.Payload.DataRecords {
		if len(rec.DataTypes) == 0 || rec.DataTypes[0] != DataTypeEncrypted {
			continue
		}
		if rec.Encoding != EncodingBase64 {
			continue
		}
		return rec, true
	}
	return DataRecord{}, false
}
