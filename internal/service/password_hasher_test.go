package service

import (
	"strings"
	"testing"
)

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	h := NewPasswordHasher()

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}
	if !h.Verify("correct horse battery staple", encoded) {
		t.Fatalf("expected verify to succeed for matching password")
	}
	if h.Verify("wrong password", encoded) {
		t.Fatalf("expected verify to fail for non-matching password")
	}
}

func TestPasswordHasher_SaltedPerCall(t *testing.T) {
	h := NewPasswordHasher()

	first, err := h.Hash("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := h.Hash("password123")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if first == second {
		t.Fatalf("two hashes of the same password must differ")
	}
	if !h.Verify("password123", first) || !h.Verify("password123", second) {
		t.Fatalf("both hashes must verify")
	}
}

func TestPasswordHasher_VerifyFailsClosed(t *testing.T) {
	h := NewPasswordHasher()

	cases := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"garbage", "not-a-hash"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=2,p=4$c2FsdA$aGFzaA"},
		{"bad version", "$argon2id$v=18$m=65536,t=2,p=4$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=abc,t=2,p=4$c2FsdA$aGFzaA"},
		{"zero params", "$argon2id$v=19$m=0,t=0,p=0$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=2,p=4$!!!$aGFzaA"},
		{"bad key encoding", "$argon2id$v=19$m=65536,t=2,p=4$c2FsdA$!!!"},
		{"missing sections", "$argon2id$v=19$m=65536,t=2,p=4$c2FsdA"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if h.Verify("password123", tc.encoded) {
				t.Fatalf("expected verify to return false for %q", tc.encoded)
			}
		})
	}
}
