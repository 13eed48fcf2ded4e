package transport

import (
	"encoding/json"
	"testing"
)

func TestEnvelope_DecodeMessage(t *testing.T) {
	raw := `{"type":"customer_service_message","sessionId":"s1","data":{"content":"hi","contentType":"text","userName":"User One","questionType":"billing"}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}
	if env.Type != TypeMessage || env.SessionID != "s1" {
		t.Errorf("Expected message envelope for s1, got %+v", env)
	}

	var payload messagePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if payload.Content != "hi" || payload.QuestionType != "billing" {
		t.Errorf("Unexpected payload %+v", payload)
	}
}

func TestEnvelope_DecodeTyping(t *testing.T) {
	raw := `{"type":"customer_service_typing","sessionId":"s1","data":{"isTyping":true}}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("Unmarshal envelope: %v", err)
	}

	var payload typingPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("Unmarshal payload: %v", err)
	}
	if !payload.IsTyping {
		t.Error("Expected isTyping true")
	}
}

func TestOutbound_EncodeShape(t *testing.T) {
	out := Outbound{Type: "customer_service_error", Data: errorPayload{Message: "bad"}}

	raw, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"type", "data", "timestamp"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("Expected %q in outbound frame", key)
		}
	}
}
