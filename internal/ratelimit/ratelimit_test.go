package ratelimit

import (
	"net/http"
	"testing"
)

func TestLimiterAllowsBurstThenBlocks(t *testing.T) {
	l := New(1, 3)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d within burst should be allowed", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("request beyond burst should be rate limited")
	}
}

func TestLimiterTracksIPsIndependently(t *testing.T) {
	l := New(1, 1)

	if !l.Allow("1.1.1.1") {
		t.Fatal("first IP's first request should be allowed")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("a different IP must have its own budget")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("first IP should now be rate limited")
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := &http.Request{Header: http.Header{"X-Forwarded-For": []string{"203.0.113.5, 10.0.0.1"}}, RemoteAddr: "10.0.0.1:443"}
	if got := ClientIP(r); got != "203.0.113.5" {
		t.Fatalf("ClientIP() = %q, want %q", got, "203.0.113.5")
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	r := &http.Request{Header: http.Header{}, RemoteAddr: "192.0.2.9:5555"}
	if got := ClientIP(r); got != "192.0.2.9" {
		t.Fatalf("ClientIP() = %q, want %q", got, "192.0.2.9")
	}
}
