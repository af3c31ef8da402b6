package id

import (
	"strings"
	"testing"
)

func TestTypedIDPrefixes(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"element", NewElementID().String(), "el_"},
		{"listener", NewListenerID().String(), "lis_"},
		{"invocation", NewInvocationID().String(), "inv_"},
		{"batch", NewBatchID().String(), "batch_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix) {
				t.Errorf("expected prefix %s, got %s", tt.prefix, tt.id)
			}
			if !IsValid(tt.id) {
				t.Errorf("expected valid ULID, got %s", tt.id)
			}
		})
	}
}

func TestGeneratorUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewElementID().String()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestIsValidRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "el_", "not-a-ulid", "el_zzz"} {
		if IsValid(bad) {
			t.Errorf("IsValid(%q) = true, want false", bad)
		}
	}
}
