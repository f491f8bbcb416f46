package uuid

import (
	"strings"
	"testing"

	googleuuid "github.com/google/uuid"
)

func TestNew_IsVersion7(t *testing.T) {
	id := New()
	parsed, err := googleuuid.Parse(id)
	if err != nil {
		t.Fatalf("New() returned unparsable id %q: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("expected version 7, got %d", parsed.Version())
	}
}

func TestNew_TimeOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 50; i++ {
		next := New()
		if next == prev {
			t.Fatal("duplicate id generated")
		}
		prev = next
	}
}

func TestParse(t *testing.T) {
	upper := strings.ToUpper(New())
	got, err := Parse(upper)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != strings.ToLower(upper) {
		t.Errorf("expected canonical lower-case id, got %s", got)
	}

	if _, err := Parse("not-a-uuid"); err == nil {
		t.Error("expected error for invalid id")
	}
	if _, err := Parse("123"); err == nil {
		t.Error("expected error for a short id")
	}
}
