package ratelimit

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestAllowWithinBurst(t *testing.T) {
	m := NewManager(rate.Limit(1), 3, time.Minute)
	defer m.Stop()

	for i := 0; i < 3; i++ {
		if !m.Allow("client-1") {
			t.Fatalf("Expected request %d within the burst to pass", i+1)
		}
	}
	if m.Allow("client-1") {
		t.Errorf("Expected the request past the burst to be limited")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	m := NewManager(rate.Limit(1), 1, time.Minute)
	defer m.Stop()

	if !m.Allow("client-1") {
		t.Fatalf("Expected the first request to pass")
	}
	if m.Allow("client-1") {
		t.Errorf("Expected client-1 to be limited")
	}
	if !m.Allow("client-2") {
		t.Errorf("Expected client-2 to have its own bucket")
	}
}

func TestRemoveResetsBucket(t *testing.T) {
	m := NewManager(rate.Limit(1), 1, time.Minute)
	defer m.Stop()

	m.Allow("client-1")
	if m.Allow("client-1") {
		t.Fatalf("Expected client-1 to be limited")
	}

	m.Remove("client-1")
	if !m.Allow("client-1") {
		t.Errorf("Expected a fresh bucket after removal")
	}
}
