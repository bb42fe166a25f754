package auth

import "testing"

func TestNewFailsInProductionWithoutKeys(t *testing.T) {
	_, err := New(Config{Environment: "production"})
	if err == nil {
		t.Fatal("expected a configuration error when production has no keys")
	}
}

func TestNewSucceedsInDevelopmentWithoutKeys(t *testing.T) {
	a, err := New(Config{Environment: "development"})
	if err != nil {
		t.Fatal(err)
	}
	if !a.Permissive() {
		t.Fatal("expected development with zero keys to be permissive")
	}
}

func TestNonDevelopmentNonProductionEnvironmentIsNotPermissive(t *testing.T) {
	a, err := New(Config{Environment: "staging"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Permissive() {
		t.Fatal("staging with zero keys must not be permissive, only development is allowed unauthenticated")
	}
	if _, ok := a.Verify(""); ok {
		t.Fatal("expected staging with zero keys to reject an empty credential")
	}
}

func TestSecurityEnforcementOverridesEnvironment(t *testing.T) {
	_, err := New(Config{Environment: "development", SecurityEnforced: true})
	if err == nil {
		t.Fatal("expected security_enforcement to force production-strict behavior")
	}
}

func TestVerifyPermissiveModeAcceptsEmptyCredential(t *testing.T) {
	a, err := New(Config{Environment: "development"})
	if err != nil {
		t.Fatal(err)
	}
	principal, ok := a.Verify("")
	if !ok || principal.ID != "development" {
		t.Fatalf("expected permissive principal, got %+v ok=%v", principal, ok)
	}
}

func TestVerifyRejectsUnknownKey(t *testing.T) {
	a, err := New(Config{Environment: "production", APIKey: "secret-key-123"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Verify("wrong-key"); ok {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestVerifyAcceptsConfiguredKeyAndTruncatesPrincipal(t *testing.T) {
	a, err := New(Config{Environment: "production", APIKey: "secret-key-123"})
	if err != nil {
		t.Fatal(err)
	}
	principal, ok := a.Verify("secret-key-123")
	if !ok {
		t.Fatal("expected configured key to be accepted")
	}
	if principal.ID != "secret-k..." {
		t.Fatalf("expected truncated principal 'secret-k...', got %q", principal.ID)
	}
}

func TestVerifyTrimsWhitespaceOnLoad(t *testing.T) {
	a, err := New(Config{Environment: "production", APIKey: "  secret-key-123  "})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := a.Verify("secret-key-123"); !ok {
		t.Fatal("expected whitespace-trimmed key to match")
	}
}

func TestAdditionalAPIKeysAreAccepted(t *testing.T) {
	a, err := New(Config{Environment: "production", APIKey: "k1", AdditionalAPIKeys: []string{"k2", "k3"}})
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"k1", "k2", "k3"} {
		if _, ok := a.Verify(k); !ok {
			t.Fatalf("expected key %q to be accepted", k)
		}
	}
}
