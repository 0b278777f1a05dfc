package main

import (
	"os"
	"path/filepath"
	"testing"

	"quiz-checkout/internal/catalog"
)

func TestParseItem(t *testing.T) {
	tests := []struct {
		in       string
		handle   string
		quantity int
		wantErr  bool
	}{
		{"oud-wood", "oud-wood", 1, false},
		{"oud-wood:3", "oud-wood", 3, false},
		{"oud-wood:x", "", 0, true},
	}
	for _, tt := range tests {
		item, err := parseItem(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseItem(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (item.Handle != tt.handle || item.Quantity != tt.quantity) {
			t.Errorf("parseItem(%q) = %+v", tt.in, item)
		}
	}
}

func TestItemFlagsRepeat(t *testing.T) {
	var items itemFlags
	for _, v := range []string{"oud-wood:2", "neroli"} {
		if err := items.Set(v); err != nil {
			t.Fatal(err)
		}
	}
	if got := items.String(); got != "oud-wood:2,neroli:1" {
		t.Errorf("String() = %q", got)
	}
}

func TestWriteMappingRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	if err := writeMapping(path, map[string]map[string]string{"1": {"oud-wood": "111"}}); err != nil {
		t.Fatalf("writeMapping() error = %v", err)
	}

	m, err := catalog.LoadMapping(path)
	if err != nil {
		t.Fatalf("LoadMapping() error = %v", err)
	}
	if v, ok := m.Lookup("1", "oud-wood"); !ok || v != "111" {
		t.Errorf("Lookup = %q, %v", v, ok)
	}
	if m.GeneratedAt().IsZero() {
		t.Error("GeneratedAt should be set")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal(err)
	}
}
