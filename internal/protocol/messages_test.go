package protocol

import "testing"

func TestFirstEncryptedRecord(t *testing.T) {
	event := DataPresentEvent{
		Payload: Payload{
			DataRecords: []DataRecord{
				// 先頭タグがENCRYPTEDでないレコードは無視する
				{DataTypes: []string{"TRACK2", DataTypeEncrypted}, Data: "a", Encoding: EncodingBase64},
				// Base64以外のエンコーディングは無視する
				{DataTypes: []string{DataTypeEncrypted}, Data: "b", Encoding: "HEX"},
				{DataTypes: []string{DataTypeEncrypted, "TRACK2"}, Data: "c", Encoding: EncodingBase64},
			},
		},
	}

	record, ok := event.FirstEncryptedRecord()
	if !ok {
		t.Fatal("want encrypted record, got none")
	}
	if record.Data != "c" {
		t.Errorf("want record c, got %s", record.Data)
	}
}

func TestFirstEncryptedRecord_NoneValid(t *testing.T) {
	event := DataPresentEvent{
		Payload: Payload{
			DataRecords: []DataRecord{
				{DataTypes: []string{"TRACK2"}, Data: "a", Encoding: EncodingBase64},
				{DataTypes: nil, Data: "b", Encoding: EncodingBase64},
			},
		},
	}
	if _, ok := event.FirstEncryptedRecord(); ok {
		t.Fatal("want no encrypted record")
	}
}

func TestNewSetupDirective(t *testing.T) {
	directive := NewSetupDirective("req-1", "42", "kiosk-001", "ZGF0YQ==")

	if directive.Directive != DirectiveSetup {
		t.Errorf("want %s, got %s", DirectiveSetup, directive.Directive)
	}
	if len(directive.Payload.DataRecords) != 1 {
		t.Fatalf("want 1 data record, got %d", len(directive.Payload.DataRecords))
	}
	record := directive.Payload.DataRecords[0]
	if record.DataTypes[0] != DataTypePublicKey {
		t.Errorf("want public key tag first, got %v", record.DataTypes)
	}
	if record.Encoding != EncodingBase64 {
		t.Errorf("want BASE64 encoding flag, got %s", record.Encoding)
	}
	if record.Status != RecordStatusOK {
		t.Errorf("want %s status, got %s", RecordStatusOK, record.Status)
	}
}
