package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/tablebill/api/internal/enum"
)

func TestNewOrderEvent(t *testing.T) {
	bid, oid := uuid.New(), uuid.New()
	ev, err := NewOrderEvent(enum.EventOrderRefunded, bid, oid, map[string]float64{"total_refund_amount": 5428.75})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID == "" {
		t.Error("expected event id")
	}
	if ev.BusinessID != bid || ev.OrderID != oid {
		t.Errorf("ids: got %v/%v", ev.BusinessID, ev.OrderID)
	}
	var payload map[string]float64
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["total_refund_amount"] != 5428.75 {
		t.Errorf("payload: got %v", payload)
	}
}

func TestNewOrderEvent_UnencodablePayload(t *testing.T) {
	if _, err := NewOrderEvent(enum.EventOrderCreated, uuid.New(), uuid.New(), make(chan int)); err == nil {
		t.Error("expected marshal error")
	}
}

func TestToMessage_KeyedByOrder(t *testing.T) {
	ev, _ := NewOrderEvent(enum.EventOrderCreated, uuid.New(), uuid.New(), struct{}{})
	msg, err := toMessage(ev)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.Key) != ev.OrderID.String() {
		t.Errorf("key: got %q, want %q", msg.Key, ev.OrderID)
	}
	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event_type"] != enum.EventOrderCreated || headers["event_id"] != ev.ID {
		t.Errorf("headers: got %v", headers)
	}

	var decoded OrderEvent
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != enum.EventOrderCreated {
		t.Errorf("type: got %q", decoded.Type)
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (NopPublisher{}).Publish(context.Background(), OrderEvent{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
