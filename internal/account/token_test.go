package account

import (
	"errors"
	"testing"
	"time"
)

func testSigner(now func() time.Time) tokenSigner {
	return tokenSigner{secret: []byte("signing-secret"), issuer: "hrdesk", now: now}
}

func TestSignAndParseRoundTrip(t *testing.T) {
	signer := testSigner(time.Now)
	id := Identity{ID: "acc-1", Email: "user@example.com", Role: RoleUser}

	raw, exp, err := signer.sign(id, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if !exp.After(time.Now()) {
		t.Fatal("expiry not in the future")
	}
	got, err := signer.parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != id {
		t.Fatalf("parsed %+v, want %+v", got, id)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	signer := testSigner(func() time.Time { return current })

	raw, _, err := signer.sign(Identity{ID: "acc-1", Role: RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	current = base.Add(2 * time.Minute)
	if _, err := signer.parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	signer := testSigner(time.Now)
	raw, _, err := signer.sign(Identity{ID: "acc-1", Role: RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	other := tokenSigner{secret: []byte("different"), issuer: "hrdesk", now: time.Now}
	if _, err := other.parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	signer := tokenSigner{secret: []byte("signing-secret"), issuer: "someone-else", now: time.Now}
	raw, _, err := signer.sign(Identity{ID: "acc-1", Role: RoleUser}, time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := testSigner(time.Now).parse(raw); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	signer := testSigner(time.Now)
	for _, raw := range []string{"", "   ", "not.a.token"} {
		if _, err := signer.parse(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("parse(%q) err = %v, want ErrInvalidToken", raw, err)
		}
	}
}
