package nats

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempts int
		max      time.Duration
		min      time.Duration
	}{
		{1, 6 * time.Second, 2 * time.Second},
		{16, 6 * time.Minute, 6 * time.Minute},
		{400000, time.Second, time.Second},
	}

	for _, test := range tests {
		backoff := ExpBackoff(test.attempts, test.max)
		if backoff < test.min || backoff > test.min+time.Second {
			t.Errorf("attempts %v: backoff %v out of range", test.attempts, backoff)
		}
	}
}

func TestSanitizeURI(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"nats://localhost", "nats://localhost:4222"},
		{"nats://localhost:4333", "nats://localhost:4333"},
		{" ws://example.com ", "ws://example.com:80"},
		{"wss://example.com", "wss://example.com:443"},
	}

	for _, test := range tests {
		out, err := sanitizeURI(test.in)
		if err != nil {
			t.Errorf("%q: %v", test.in, err)
			continue
		}
		if out != test.out {
			t.Errorf("%q: got %q, expected %q", test.in, out, test.out)
		}
	}

	if _, err := sanitizeURI("localhost"); err == nil {
		t.Error("expected error for URI without scheme")
	}
}
