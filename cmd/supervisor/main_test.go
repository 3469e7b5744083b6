package main

import (
	"strings"
	"testing"
)

const mainTestPrefix = "cmd/supervisor:main_test"

func TestUsage_NonEmpty(t *testing.T) {
	if len(usage) == 0 {
		t.Fatalf("%s - usage string is empty", mainTestPrefix)
	}
}

func TestUsage_ContainsCommands(t *testing.T) {
	required := []string{"serve", "query", "find", "look", "migrate", "ensure-db", "clear", "DATABASE_URL"}
	for _, word := range required {
		if !strings.Contains(usage, word) {
			t.Errorf("%s - usage should contain %q", mainTestPrefix, word)
		}
	}
}

func TestDialable(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"0.0.0.0:20087", "127.0.0.1:20087", false},
		{":20086", "127.0.0.1:20086", false},
		{"10.0.0.5:20086", "10.0.0.5:20086", false},
		{"supervisor.local:20087", "supervisor.local:20087", false},
		{"no-port", "", true},
	}
	for _, tt := range tests {
		got, err := dialable(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s - dialable(%q) error = %v, wantErr %v", mainTestPrefix, tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got.String() != tt.want {
			t.Errorf("%s - dialable(%q) = %q, want %q", mainTestPrefix, tt.in, got.String(), tt.want)
		}
	}
}
