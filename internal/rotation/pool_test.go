package rotation

import (
	"errors"
	"testing"
)

func TestNewPoolOrder(t *testing.T) {
	pool, err := NewPool(2, 2, "quote:1")
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	want := []string{"image:0", "image:1", "quote:0", "quote:1"}
	got := pool.Keys()
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("key %d = %s, want %s", i, got[i], want[i])
		}
	}
	if pool.DefaultKey() != "quote:1" {
		t.Errorf("unexpected default key: %s", pool.DefaultKey())
	}
}

func TestNewPoolDefaultFallsBackToFirstItem(t *testing.T) {
	pool, err := NewPool(1, 0, "quote:0")
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	if pool.DefaultKey() != "image:0" {
		t.Errorf("expected image:0 default, got %s", pool.DefaultKey())
	}
}

func TestNewPoolEmpty(t *testing.T) {
	if _, err := NewPool(0, 0, DefaultKey); !errors.Is(err, ErrEmptyPool) {
		t.Errorf("expected ErrEmptyPool, got %v", err)
	}
}

func TestPoolDecode(t *testing.T) {
	pool, err := NewPool(2, 1, DefaultKey)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}

	tests := []struct {
		key  string
		want Item
	}{
		{key: "image:1", want: Item{Type: TypeImage, Index: 1}},
		{key: "quote:0", want: Item{Type: TypeQuote, Index: 0}},
		{key: "quote:7", want: Item{Type: TypeQuote, Index: 0}},
		{key: "garbage", want: Item{Type: TypeQuote, Index: 0}},
		{key: "", want: Item{Type: TypeQuote, Index: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := pool.Decode(tt.key); got != tt.want {
				t.Errorf("Decode(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key     string
		want    Item
		wantErr bool
	}{
		{key: "image:3", want: Item{Type: TypeImage, Index: 3}},
		{key: "quote:0", want: Item{Type: TypeQuote, Index: 0}},
		{key: "quote", wantErr: true},
		{key: ":1", wantErr: true},
		{key: "quote:x", wantErr: true},
		{key: "quote:-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := ParseKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseKey(%q) = %+v, want %+v", tt.key, got, tt.want)
			}
		})
	}
}
