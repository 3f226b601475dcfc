package gateway

import "testing"

func TestBindAndLookup(t *testing.T) {
	r := NewIdentityRegistry()

	r.Bind("dev-1", "conn-a")

	if got := r.IdentityOf("conn-a"); got != "dev-1" {
		t.Errorf("IdentityOf: expected dev-1, got %q", got)
	}
	if got := r.ConnOf("dev-1"); got != "conn-a" {
		t.Errorf("ConnOf: expected conn-a, got %q", got)
	}
}

func TestBind_ReplacesOldConnection(t *testing.T) {
	r := NewIdentityRegistry()

	// A device reconnecting gets a new connection id; the old binding
	// must not linger.
	r.Bind("dev-1", "conn-a")
	r.Bind("dev-1", "conn-b")

	if got := r.ConnOf("dev-1"); got != "conn-b" {
		t.Errorf("expected conn-b, got %q", got)
	}
	if got := r.IdentityOf("conn-a"); got != "" {
		t.Errorf("expected stale connection unbound, got %q", got)
	}
}

func TestBind_ReplacesOldIdentity(t *testing.T) {
	r := NewIdentityRegistry()

	// The same connection re-registering as another device drops the
	// previous identity binding.
	r.Bind("dev-1", "conn-a")
	r.Bind("dev-2", "conn-a")

	if got := r.IdentityOf("conn-a"); got != "dev-2" {
		t.Errorf("expected dev-2, got %q", got)
	}
	if got := r.ConnOf("dev-1"); got != "" {
		t.Errorf("expected dev-1 unbound, got %q", got)
	}
}

func TestUnbindConn(t *testing.T) {
	r := NewIdentityRegistry()

	r.Bind("dev-1", "conn-a")

	if got := r.UnbindConn("conn-a"); got != "dev-1" {
		t.Errorf("expected dev-1 returned, got %q", got)
	}
	if got := r.ConnOf("dev-1"); got != "" {
		t.Errorf("expected binding removed, got %q", got)
	}
	if got := r.UnbindConn("conn-a"); got != "" {
		t.Errorf("expected empty for repeated unbind, got %q", got)
	}
}
