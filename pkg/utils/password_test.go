package utils

import (
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("secret123")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("unexpected hash format: %s", hash)
	}

	ok, err := VerifyPassword("secret123", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !ok {
		t.Error("correct password did not verify")
	}

	ok, err = VerifyPassword("wrong", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if ok {
		t.Error("wrong password verified")
	}
}

func TestHashesAreSalted(t *testing.T) {
	a, err := HashPassword("secret123")
	if err != nil {
		t.Fatal(err)
	}
	b, err := HashPassword("secret123")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("two hashes of the same password should differ")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	if _, err := VerifyPassword("secret123", "not-a-hash"); err == nil {
		t.Error("malformed hash must be rejected")
	}
	if _, err := VerifyPassword("secret123", "$bcrypt$something$else$entirely$x"); err == nil {
		t.Error("non-argon2id hash must be rejected")
	}
}
