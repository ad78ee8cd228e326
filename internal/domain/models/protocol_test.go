package models

import (
	"errors"
	"testing"
)

func parseCode(t *testing.T, err error) string {
	t.Helper()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %T: %v", err, err)
	}
	return pe.Code
}

func TestParseSubscribe(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"subscribe","data":{"symbols":["USDCAD","EURCAD"],"subscriptionType":"rates","storeId":"store-7"}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != MsgSubscribe || msg.Subscribe == nil {
		t.Fatalf("wrong variant: %+v", msg)
	}
	if len(msg.Subscribe.Symbols) != 2 || msg.Subscribe.StoreID != "store-7" {
		t.Fatalf("payload mismatch: %+v", msg.Subscribe)
	}
}

func TestParseSubscribeDefaultsCategory(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"subscribe","data":{"symbols":["USDCAD"]}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Subscribe.SubscriptionType != CategoryRates {
		t.Fatalf("expected default category rates, got %q", msg.Subscribe.SubscriptionType)
	}
}

func TestParseUnsubscribeWithoutData(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"unsubscribe"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Type != MsgUnsubscribe || msg.Unsubscribe == nil {
		t.Fatalf("wrong variant: %+v", msg)
	}
}

func TestParsePing(t *testing.T) {
	msg, err := ParseInbound([]byte(`{"type":"ping","timestamp":1700000000}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if msg.Ping == nil || msg.Ping.Timestamp != 1700000000 {
		t.Fatalf("ping payload mismatch: %+v", msg.Ping)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		code string
	}{
		{"malformed json", `{`, "ERR_MALFORMED_JSON"},
		{"missing type", `{"data":{}}`, "ERR_MISSING_TYPE"},
		{"unknown type", `{"type":"dance"}`, "ERR_UNKNOWN_TYPE"},
		{"unknown category", `{"type":"subscribe","data":{"subscriptionType":"weather"}}`, "ERR_UNKNOWN_CATEGORY"},
		{"malformed subscribe", `{"type":"subscribe","data":"nope"}`, "ERR_MALFORMED_SUBSCRIBE"},
		{"malformed unsubscribe", `{"type":"unsubscribe","data":"nope"}`, "ERR_MALFORMED_UNSUBSCRIBE"},
	}
	for _, tc := range cases {
		_, err := ParseInbound([]byte(tc.in))
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if got := parseCode(t, err); got != tc.code {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.code, got)
		}
	}
}
