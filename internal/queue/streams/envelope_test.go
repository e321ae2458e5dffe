package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeValidateBasic(t *testing.T) {
	env := Envelope{EventID: "e1", EventType: "query.submitted", Data: json.RawMessage(`{"query_id":"abc"}`)}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("ValidateBasic: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatalf("occurred_at not defaulted")
	}
}

func TestEnvelopeValidateBasicMissingFields(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing event_id", Envelope{EventType: "t", Data: json.RawMessage(`{}`)}},
		{"missing event_type", Envelope{EventID: "e", Data: json.RawMessage(`{}`)}},
		{"missing data", Envelope{EventID: "e", EventType: "t"}},
		{"negative attempt", Envelope{EventID: "e", EventType: "t", Attempt: -1, Data: json.RawMessage(`{}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.env.ValidateBasic(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestEnvelopeMarshalRoundTrip(t *testing.T) {
	env := Envelope{
		EventID:    "e1",
		EventType:  "query.submitted",
		OccurredAt: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Data:       json.RawMessage(`{"query_id":"abc","query_text":"q"}`),
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	decoded, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if decoded.EventID != env.EventID || decoded.EventType != env.EventType {
		t.Fatalf("envelope mangled: %+v", decoded)
	}
	if !decoded.OccurredAt.Equal(env.OccurredAt) {
		t.Fatalf("occurred_at mangled: %v", decoded.OccurredAt)
	}
	if string(decoded.Data) != string(env.Data) {
		t.Fatalf("data mangled: %s", decoded.Data)
	}
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected unmarshal error")
	}
	if _, err := UnmarshalEnvelope([]byte(`{"event_type":"t"}`)); err == nil {
		t.Fatalf("expected validation error for missing fields")
	}
}
