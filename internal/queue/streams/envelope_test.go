package streams

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	doc := RawDocument{
		SourceName:  "MoneyControl",
		SourceKind:  "feed",
		Title:       "Markets rally",
		Body:        "Benchmark indices closed higher.",
		URL:         "https://example.com/markets-rally",
		PublishedAt: time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	env := Envelope{
		EventID:        "evt-1",
		EventType:      EventRawDocument,
		PayloadVersion: PayloadVersion,
		Data:           data,
	}
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope: %v", err)
	}
	if got.EventType != EventRawDocument {
		t.Errorf("event type = %q", got.EventType)
	}
	var back RawDocument
	if err := json.Unmarshal(got.Data, &back); err != nil {
		t.Fatal(err)
	}
	if back.URL != doc.URL || back.SourceName != doc.SourceName {
		t.Errorf("payload mismatch: %+v", back)
	}
}

func TestEnvelopeValidateBasic(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
	}{
		{"missing event id", Envelope{EventType: EventRawDocument, PayloadVersion: PayloadVersion, Data: []byte(`{}`)}},
		{"missing event type", Envelope{EventID: "e", PayloadVersion: PayloadVersion, Data: []byte(`{}`)}},
		{"missing payload version", Envelope{EventID: "e", EventType: EventRawDocument, Data: []byte(`{}`)}},
		{"missing data", Envelope{EventID: "e", EventType: EventRawDocument, PayloadVersion: PayloadVersion}},
		{"negative attempt", Envelope{EventID: "e", EventType: EventRawDocument, PayloadVersion: PayloadVersion, Attempt: -1, Data: []byte(`{}`)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := tc.env
			if err := env.ValidateBasic(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvelopeDefaultsOccurredAt(t *testing.T) {
	env := Envelope{EventID: "e", EventType: EventNewsUpdate, PayloadVersion: PayloadVersion, Data: []byte(`{}`)}
	if err := env.ValidateBasic(); err != nil {
		t.Fatal(err)
	}
	if env.OccurredAt.IsZero() {
		t.Error("OccurredAt should default to now")
	}
}
