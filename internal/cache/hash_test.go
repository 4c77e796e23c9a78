package cache

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestHashIsDeterministic(t *testing.T) {
	keys := []string{"", "a", "/repo/tree?id=abc", strings.Repeat("x", 4096)}
	for _, key := range keys {
		if Hash(key) != Hash(key) {
			t.Fatalf("hash of %q not stable", key)
		}
	}
	// xxhash64 with seed 0 has a fixed, well known value for the empty input.
	if got := Hash(""); got != 0xef46db3751d8e999 {
		t.Fatalf("unexpected hash for empty key: %x", got)
	}
	if Hash("a") == Hash("b") {
		t.Fatalf("distinct short keys should not collide")
	}
}

func TestSlotIDIsFileSafe(t *testing.T) {
	for _, key := range []string{"", "a/b/../c", "with space", "\x00\xff"} {
		id := SlotID(key)
		if len(id) != 16 {
			t.Fatalf("slot id %q has length %d", id, len(id))
		}
		if strings.ContainsAny(id, `/\.`) {
			t.Fatalf("slot id %q contains path characters", id)
		}
		if !IsSlotName(id) {
			t.Fatalf("slot id %q not recognised as slot name", id)
		}
	}
	if FormatID(0x1) != "0000000000000001" {
		t.Fatalf("ids must be zero padded, got %s", FormatID(0x1))
	}
}

func TestResolveDerivesSiblingPaths(t *testing.T) {
	p := Resolve("/var/cache/pages", "key")
	if p.ID != SlotID("key") {
		t.Fatalf("id mismatch: %s", p.ID)
	}
	if p.Content != filepath.Join("/var/cache/pages", p.ID) {
		t.Fatalf("content path mismatch: %s", p.Content)
	}
	if p.Lock != p.Content+".lock" {
		t.Fatalf("lock path mismatch: %s", p.Lock)
	}
	if IsSlotName(filepath.Base(p.Lock)) {
		t.Fatalf("lock artifact must not look like a slot")
	}
}

func TestSlotAndTempNameFilters(t *testing.T) {
	id := SlotID("k")
	cases := []struct {
		name string
		slot bool
		temp bool
	}{
		{id, true, false},
		{id + ".lock", false, false},
		{id + "123456789", false, true},
		{"ABCDEF0123456789", false, false},
		{"notes.txt", false, false},
		{id + "12ab", false, false},
	}
	for _, tc := range cases {
		if got := IsSlotName(tc.name); got != tc.slot {
			t.Errorf("IsSlotName(%q) = %v", tc.name, got)
		}
		if got := isTempName(tc.name); got != tc.temp {
			t.Errorf("isTempName(%q) = %v", tc.name, got)
		}
	}
}
