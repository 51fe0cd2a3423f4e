package socks

import (
	"errors"
	"testing"
	"time"
)

func TestNewEmbeddedTor(t *testing.T) {
	t.Parallel()

	t.Run("default timeout", func(t *testing.T) {
		t.Parallel()
		e := NewEmbeddedTor()
		if e.startupTimeout != 3*time.Minute {
			t.Errorf("expected 3m, got %v", e.startupTimeout)
		}
	})

	t.Run("custom timeout", func(t *testing.T) {
		t.Parallel()
		e := NewEmbeddedTor(WithStartupTimeout(time.Minute))
		if e.startupTimeout != time.Minute {
			t.Errorf("expected 1m, got %v", e.startupTimeout)
		}
	})
}

func TestEmbeddedTorNotStarted(t *testing.T) {
	t.Parallel()

	e := NewEmbeddedTor()
	if e.IsRunning() {
		t.Error("expected not running")
	}
	if e.SocksAddr() != "" {
		t.Errorf("expected empty socks address, got %q", e.SocksAddr())
	}
	if err := e.Stop(); err != nil {
		t.Errorf("expected Stop on unstarted daemon to be a no-op, got %v", err)
	}
	if _, err := e.NewClient(time.Second); !errors.Is(err, ErrTorNotRunning) {
		t.Errorf("expected ErrTorNotRunning, got %v", err)
	}
}
