package semver

import (
	"errors"
	"testing"
)

func TestGateCheck(t *testing.T) {
	gate, err := NewGate("cellapp@^2.1.0;>=2.0.0")
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}

	tests := []struct {
		name    string
		typ     string
		version string
		wantErr bool
	}{
		{"typed rule satisfied", "cellapp", "2.3.0", false},
		{"typed rule wins over default", "cellapp", "2.0.5", true},
		{"typed rule case-insensitive", "CellApp", "2.1.0", false},
		{"default satisfied", "baseapp", "2.0.0", false},
		{"default rejected", "baseapp", "1.9.9", true},
		{"empty version admitted", "baseapp", "", false},
		{"unparsable version rejected", "baseapp", "latest", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := gate.Check(tt.typ, tt.version)
			if tt.wantErr {
				if !errors.Is(err, ErrVersionRejected) {
					t.Errorf("Check(%q, %q) = %v, want ErrVersionRejected", tt.typ, tt.version, err)
				}
				return
			}
			if err != nil {
				t.Errorf("Check(%q, %q) unexpected error: %v", tt.typ, tt.version, err)
			}
		})
	}
}

func TestOpenGate(t *testing.T) {
	gate, err := NewGate("")
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	if !gate.Open() {
		t.Error("expected empty rules to be open")
	}
	if err := gate.Check("cellapp", "0.0.1"); err != nil {
		t.Errorf("open gate rejected: %v", err)
	}

	var nilGate *Gate
	if !nilGate.Open() || nilGate.Check("dbmgr", "1.0.0") != nil {
		t.Error("nil gate should admit everything")
	}
}

func TestSatisfiesRange(t *testing.T) {
	tests := []struct {
		version string
		rng     string
		want    bool
	}{
		{"3.2.1", "3", true},
		{"4.0.0", "3", false},
		{"3.2.1", "^3.0.0", true},
		{"3.2.1", "~3.1.0", false},
		{"bad", ">=1.0.0", false},
		{"1.0.0", "not a range", false},
	}
	for _, tt := range tests {
		if got := SatisfiesRange(tt.version, tt.rng); got != tt.want {
			t.Errorf("SatisfiesRange(%q, %q) = %v, want %v", tt.version, tt.rng, got, tt.want)
		}
	}
}

func TestCompare(t *testing.T) {
	if Compare("2.0.0", "10.0.0") >= 0 {
		t.Error("expected 2.0.0 < 10.0.0")
	}
	if Compare("1.0.0", "1.0.0") != 0 {
		t.Error("expected equal")
	}
	if Compare("junk", "1.0.0") >= 0 {
		t.Error("expected unparsable to sort first")
	}
}
