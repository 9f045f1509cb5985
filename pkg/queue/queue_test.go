package queue

import (
	"encoding/json"
	"testing"
)

type notePayload struct {
	Region string  `json:"region"`
	Qty    float64 `json:"qty"`
}

func TestParsePayload(t *testing.T) {
	want := notePayload{Region: "Pune", Qty: 123.12}

	fromStruct, err := ParsePayload[notePayload](want)
	if err != nil {
		t.Fatalf("parse struct: %v", err)
	}
	if *fromStruct != want {
		t.Fatalf("parse struct = %+v, want %+v", *fromStruct, want)
	}

	fromPtr, err := ParsePayload[notePayload](&want)
	if err != nil {
		t.Fatalf("parse pointer: %v", err)
	}
	if *fromPtr != want {
		t.Fatalf("parse pointer = %+v, want %+v", *fromPtr, want)
	}

	fromMap, err := ParsePayload[notePayload](map[string]interface{}{
		"region": "Pune", "qty": 123.12,
	})
	if err != nil {
		t.Fatalf("parse map: %v", err)
	}
	if *fromMap != want {
		t.Fatalf("parse map = %+v, want %+v", *fromMap, want)
	}

	fromRaw, err := ParsePayload[notePayload](json.RawMessage(`{"region":"Pune","qty":123.12}`))
	if err != nil {
		t.Fatalf("parse raw: %v", err)
	}
	if *fromRaw != want {
		t.Fatalf("parse raw = %+v, want %+v", *fromRaw, want)
	}

	if _, err := ParsePayload[notePayload](42); err == nil {
		t.Fatalf("expected error for unsupported payload type")
	}
}

func TestNormalizePayload(t *testing.T) {
	raw := normalizePayload(map[string]interface{}{"region": "Nashik"})
	data, ok := raw.(json.RawMessage)
	if !ok {
		t.Fatalf("normalized payload type = %T, want json.RawMessage", raw)
	}
	var got notePayload
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal normalized payload: %v", err)
	}
	if got.Region != "Nashik" {
		t.Fatalf("region = %s, want Nashik", got.Region)
	}

	// non-map payloads pass through untouched
	if out := normalizePayload("plain"); out != "plain" {
		t.Fatalf("passthrough = %v, want plain", out)
	}
}
