package password

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func cheapArgon2(t *testing.T) *Argon2 {
	t.Helper()
	h, err := NewArgon2(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return h
}

func TestChainVerifiesLegacyBcrypt(t *testing.T) {
	legacy, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	chain, err := NewChain(cheapArgon2(t), legacy)
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}

	old, err := legacy.Hash("imported-secret")
	if err != nil {
		t.Fatalf("bcrypt hash: %v", err)
	}

	ok, err := chain.Verify("imported-secret", old)
	if err != nil || !ok {
		t.Fatalf("expected legacy hash to verify, ok=%v err=%v", ok, err)
	}
	ok, err = chain.Verify("wrong-secret!!", old)
	if err != nil || ok {
		t.Fatalf("expected mismatch, ok=%v err=%v", ok, err)
	}

	rehash, err := chain.NeedsRehash(old)
	if err != nil || !rehash {
		t.Fatalf("legacy encodings must need a rehash, got %v err=%v", rehash, err)
	}

	fresh, err := chain.Hash("imported-secret")
	if err != nil {
		t.Fatalf("chain hash: %v", err)
	}
	if !strings.HasPrefix(fresh, "$argon2id$") {
		t.Fatalf("expected argon2id output, got %s", fresh)
	}
	rehash, err = chain.NeedsRehash(fresh)
	if err != nil || rehash {
		t.Fatalf("fresh primary hash must not need a rehash, got %v err=%v", rehash, err)
	}
}

func TestChainUnknownScheme(t *testing.T) {
	chain, err := NewChain(cheapArgon2(t))
	if err != nil {
		t.Fatalf("NewChain error: %v", err)
	}
	if _, err := chain.Verify("whatever-pass", "$md5$abc"); !errors.Is(err, ErrUnknownScheme) {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
	if _, err := chain.NeedsRehash("plain"); !errors.Is(err, ErrUnknownScheme) {
		t.Fatalf("expected ErrUnknownScheme, got %v", err)
	}
	if _, err := NewChain(nil); err == nil {
		t.Fatal("expected nil primary to be rejected")
	}
}

func TestBcryptRejectsOverlongPassword(t *testing.T) {
	b, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	if _, err := b.Hash(strings.Repeat("x", 73)); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("expected ErrPasswordLength, got %v", err)
	}
	if _, err := NewBcrypt(bcrypt.MaxCost + 1); err == nil {
		t.Fatal("expected out of range cost to be rejected")
	}
}

func TestBcryptNeedsRehashOnLowerCost(t *testing.T) {
	low, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	high, err := NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	h, err := low.Hash("some-long-secret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if ok, err := high.NeedsRehash(h); err != nil || !ok {
		t.Fatalf("expected rehash for lower cost, got %v err=%v", ok, err)
	}
}
