package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageUnmarshalProposal(t *testing.T) {
	raw := `{
		"id": 1714557600000,
		"senderId": 7,
		"senderName": "Ravi",
		"senderRole": "customer",
		"type": "price_proposal",
		"text": "Proposed: ₹10/kg × 5 kg = ₹50.00",
		"proposedPrice": 10,
		"proposedQuantity": 5,
		"totalAmount": 50,
		"originalPrice": 12,
		"originalQuantity": 10,
		"cropId": "c1",
		"cropName": "Wheat",
		"status": "pending",
		"deliveryAddress": "Pune",
		"timestamp": "2024-05-01T10:00:00.000Z"
	}`

	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if m.ID != "1714557600000" {
		t.Errorf("id = %q", m.ID)
	}
	if m.Sender.ID != "7" || m.Sender.Role != RoleCustomer {
		t.Errorf("sender = %+v", m.Sender)
	}
	p, ok := m.Proposal()
	if !ok {
		t.Fatalf("body = %T, want PriceProposal", m.Body)
	}
	if p.ProposedPrice != 10 || p.ProposedQuantity != 5 || p.TotalAmount != 50 {
		t.Errorf("proposal = %+v", p)
	}
	if p.Status != ProposalPending || p.DeliveryAddress != "Pune" {
		t.Errorf("proposal = %+v", p)
	}
	if m.CropID != "c1" {
		t.Errorf("cropId = %q", m.CropID)
	}
}

func TestMessageWireShape(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := Message{
		ID:        "m1",
		Sender:    Sender{ID: "f1", Name: "Farmer", Role: RoleFarmer},
		Timestamp: ts,
		Body:      Text{Text: "hello"},
	}

	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(data, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if flat["type"] != "text" || flat["text"] != "hello" || flat["senderId"] != "f1" {
		t.Errorf("wire = %s", data)
	}
	if _, ok := flat["proposedPrice"]; ok {
		t.Errorf("text message must not carry proposal fields: %s", data)
	}
}

func TestMessageLegacyAndUnknownTypes(t *testing.T) {
	var legacy Message
	if err := json.Unmarshal([]byte(`{"id":"1","text":"hi","timestamp":"2024-05-01T10:00:00Z"}`), &legacy); err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if body, ok := legacy.Body.(Text); !ok || body.Text != "hi" {
		t.Errorf("legacy body = %#v", legacy.Body)
	}

	var unknown Message
	if err := json.Unmarshal([]byte(`{"id":"1","type":"sticker","timestamp":"2024-05-01T10:00:00Z"}`), &unknown); err == nil {
		t.Error("expected error for unknown type")
	}

	if _, err := json.Marshal(Message{ID: "x"}); err == nil {
		t.Error("expected error for message without body")
	}
}

func TestIDAcceptsNumbersAndStrings(t *testing.T) {
	tests := []struct {
		raw  string
		want ID
	}{
		{`"abc"`, "abc"},
		{`42`, "42"},
		{`1714557600000`, "1714557600000"},
		{`null`, ""},
	}

	for _, tt := range tests {
		var id ID
		if err := json.Unmarshal([]byte(tt.raw), &id); err != nil {
			t.Fatalf("%s: %v", tt.raw, err)
		}
		if id != tt.want {
			t.Errorf("%s: got %q, want %q", tt.raw, id, tt.want)
		}
	}
}

func TestTotalRoundsToCents(t *testing.T) {
	if got := Total(9, 6); got != 54 {
		t.Errorf("Total(9, 6) = %v", got)
	}
	if got := Total(0.1, 3); got != 0.3 {
		t.Errorf("Total(0.1, 3) = %v", got)
	}
	if got := FormatMoney(54); got != "54.00" {
		t.Errorf("FormatMoney(54) = %q", got)
	}
}
