package utils

import (
	"regexp"
	"testing"
)

var hexDigest = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestHashString(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "document number", input: "1020304050"},
		{name: "empty string", input: ""},
		{name: "alphanumeric id", input: "CE-X1234567"},
		{name: "unicode", input: "Pérez Niño 1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash := HashString(tt.input)

			if !hexDigest.MatchString(hash) {
				t.Errorf("HashString() = %q, want 64 lowercase hex characters", hash)
			}
			if hash != HashString(tt.input) {
				t.Errorf("HashString() not deterministic for %q", tt.input)
			}
			if tt.input != "" && hash == tt.input {
				t.Errorf("HashString() returned the input unchanged")
			}
		})
	}
}

func TestHashStringKnownVector(t *testing.T) {
	// sha256 of the empty string
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashString(""); got != want {
		t.Errorf("HashString(\"\") = %s, want %s", got, want)
	}
}

func TestHashStringDistinguishesNearbyIDs(t *testing.T) {
	// Sequential or near-identical document numbers must not collide
	pairs := [][2]string{
		{"1020304050", "1020304051"},
		{"1020304050", "1020304050 "},
		{"CC-1020304050", "cc-1020304050"},
	}

	for _, p := range pairs {
		if HashString(p[0]) == HashString(p[1]) {
			t.Errorf("HashString() collision for %q and %q", p[0], p[1])
		}
	}
}
