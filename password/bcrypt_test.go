package password

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestNewBcryptValidatesCost(t *testing.T) {
	if _, err := NewBcrypt(Config{Cost: bcrypt.MinCost - 1}); err == nil {
		t.Fatal("cost below minimum must be rejected")
	}
	if _, err := NewBcrypt(Config{Cost: bcrypt.MaxCost + 1}); err == nil {
		t.Fatal("cost above maximum must be rejected")
	}
	if _, err := NewBcrypt(Config{Cost: bcrypt.DefaultCost}); err != nil {
		t.Fatalf("default cost rejected: %v", err)
	}
}

func TestHashAndVerify(t *testing.T) {
	b, err := NewBcrypt(Config{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}

	hash, err := b.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := b.Verify("correct-horse-battery", hash)
	if err != nil || !ok {
		t.Fatalf("matching password: ok=%v err=%v", ok, err)
	}

	ok, err = b.Verify("wrong-password-here", hash)
	if err != nil {
		t.Fatalf("mismatch must not be an error, got %v", err)
	}
	if ok {
		t.Fatal("wrong password verified")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	b, err := NewBcrypt(Config{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	if _, err := b.Hash("short"); err == nil {
		t.Fatal("7-byte password must be rejected")
	}
}

func TestVerifyMalformedHashIsError(t *testing.T) {
	b, err := NewBcrypt(Config{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	if _, err := b.Verify("whatever-pass", "not-a-bcrypt-hash"); err == nil {
		t.Fatal("malformed hash must surface an error")
	}
}

func TestNeedsRehash(t *testing.T) {
	low, err := NewBcrypt(Config{Cost: bcrypt.MinCost})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	high, err := NewBcrypt(Config{Cost: bcrypt.MinCost + 2})
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}

	hash, err := low.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	if low.NeedsRehash(hash) {
		t.Fatal("hash at the configured cost must not need a rehash")
	}
	if !high.NeedsRehash(hash) {
		t.Fatal("hash below the configured cost must need a rehash")
	}
	if high.NeedsRehash("garbage") {
		t.Fatal("unparseable hash reports false")
	}
}
