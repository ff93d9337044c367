package hostrpc

import "testing"

func TestTokenIssueValidateRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret")

	tok, err := issuer.Issue("session-a")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	name, err := issuer.Validate(tok)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if name != "session-a" {
		t.Fatalf("got session name %q, want %q", name, "session-a")
	}
}

func TestTokenIssuerDeterministicAcrossReplicas(t *testing.T) {
	a := NewTokenIssuer("shared-secret")
	b := NewTokenIssuer("shared-secret")

	tok, err := a.Issue("session-b")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.Validate(tok); err != nil {
		t.Fatalf("a second issuer derived from the same secret must validate a's token: %v", err)
	}
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	a := NewTokenIssuer("secret-one")
	other := NewTokenIssuer("secret-two")

	tok, err := a.Issue("session-c")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := other.Validate(tok); err == nil {
		t.Fatal("expected validation to fail against a differently-seeded issuer")
	}
}

func TestTokenRejectsGarbage(t *testing.T) {
	issuer := NewTokenIssuer("shared-secret")
	if _, err := issuer.Validate("not-a-token"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}
