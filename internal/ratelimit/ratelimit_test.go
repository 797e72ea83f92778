package ratelimit

import (
	"testing"
	"time"
)

func TestAllow_BurstThenDeny(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 5, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 5; i++ {
		if !l.Allow("10.0.0.1") {
			t.Errorf("request %d within burst should pass", i)
		}
	}
	if l.Allow("10.0.0.1") {
		t.Error("request past the burst should be denied")
	}
}

func TestAllow_ClientsTrackedSeparately(t *testing.T) {
	l := New(Config{RequestsPerSecond: 1, Burst: 3, CleanupInterval: time.Minute})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		l.Allow("10.0.0.1")
	}
	if l.Allow("10.0.0.1") {
		t.Error("exhausted client should be denied")
	}
	if !l.Allow("10.0.0.2") {
		t.Error("fresh client should still pass")
	}
}

func TestAllow_TokensReplenish(t *testing.T) {
	l := New(Config{RequestsPerSecond: 10, Burst: 1, CleanupInterval: time.Minute})
	defer l.Stop()

	if !l.Allow("client") {
		t.Fatal("first request should pass")
	}
	if l.Allow("client") {
		t.Error("immediate second request should be denied")
	}

	time.Sleep(110 * time.Millisecond)
	if !l.Allow("client") {
		t.Error("request after replenishment window should pass")
	}
}

func TestForRPS(t *testing.T) {
	cfg := ForRPS(100)
	if cfg.RequestsPerSecond != 100 {
		t.Errorf("rate = %d, want 100", cfg.RequestsPerSecond)
	}
	if cfg.Burst != 200 {
		t.Errorf("burst = %d, want 200", cfg.Burst)
	}

	// Small and non-positive rates still yield a workable config.
	small := ForRPS(3)
	if small.Burst != 20 {
		t.Errorf("small burst = %d, want floor of 20", small.Burst)
	}
	if ForRPS(0).RequestsPerSecond != 1 {
		t.Error("non-positive rate should clamp to 1")
	}
}
