package goSession

import (
	"errors"
	"testing"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	auth := &fakeAuthenticator{}

	if err := registry.Register("password", auth); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got, err := registry.Lookup("password")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if got != Authenticator(auth) {
		t.Fatal("Lookup returned a different authenticator")
	}
}

func TestRegistryUnknownFactory(t *testing.T) {
	registry := NewRegistry()

	if _, err := registry.Lookup("missing"); !errors.Is(err, ErrUnknownAuthenticator) {
		t.Fatalf("error = %v, want ErrUnknownAuthenticator", err)
	}
}

func TestRegistryRejectsEmptyName(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("   ", &fakeAuthenticator{}); !errors.Is(err, ErrEmptyAuthenticatorFactory) {
		t.Fatalf("error = %v, want ErrEmptyAuthenticatorFactory", err)
	}
}

func TestRegistryRejectsNilAuthenticator(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("password", nil); err == nil {
		t.Fatal("expected error for nil authenticator")
	}
}

func TestRegistryRejectsDuplicate(t *testing.T) {
	registry := NewRegistry()

	if err := registry.Register("password", &fakeAuthenticator{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Register("password", &fakeAuthenticator{}); !errors.Is(err, ErrDuplicateAuthenticator) {
		t.Fatalf("error = %v, want ErrDuplicateAuthenticator", err)
	}
}

func TestRegistryFreeze(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register("password", &fakeAuthenticator{}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	registry.Freeze()

	if err := registry.Register("oauth", &fakeAuthenticator{}); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("error = %v, want ErrRegistryFrozen", err)
	}
	if _, err := registry.Lookup("password"); err != nil {
		t.Fatalf("Lookup after Freeze failed: %v", err)
	}
}
