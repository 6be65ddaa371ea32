package storage

import (
	"encoding/json"
	"testing"
)

func TestParseCounter(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"null", 0},
		{"42", 42},
		{" 7 ", 7},
		{"12.9", 12},
		{"-5", 0},
		{"abc", 0},
		{"NaN", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseCounter(tt.in); got != tt.want {
				t.Errorf("ParseCounter(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseNullableMillis(t *testing.T) {
	if v := ParseNullableMillis(""); v != nil {
		t.Errorf("expected nil for empty, got %d", *v)
	}
	if v := ParseNullableMillis("0"); v != nil {
		t.Errorf("expected nil for zero, got %d", *v)
	}
	if v := ParseNullableMillis("garbage"); v != nil {
		t.Errorf("expected nil for garbage, got %d", *v)
	}
	v := ParseNullableMillis("1700000000000")
	if v == nil || *v != 1700000000000 {
		t.Fatalf("expected parsed timestamp, got %v", v)
	}
}

func TestRawCounter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int64
	}{
		{"number", `120`, 120},
		{"quoted number", `"120"`, 120},
		{"float", `1.5e3`, 1500},
		{"bool", `true`, 0},
		{"object", `{"x":1}`, 0},
		{"null", `null`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RawCounter(json.RawMessage(tt.raw)); got != tt.want {
				t.Errorf("RawCounter(%s) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestCloseReasonUnmarshal(t *testing.T) {
	var r CloseReason
	if err := json.Unmarshal([]byte(`"CHUNK_EXHAUSTED"`), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r != CloseReasonChunkExhausted {
		t.Errorf("got %s", r)
	}
	if err := json.Unmarshal([]byte(`"bored"`), &r); err == nil {
		t.Error("expected error for unknown reason")
	}
}
