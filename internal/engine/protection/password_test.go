package protection

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	h1 := HashPassword("secret")
	h2 := HashPassword("secret")
	if h1 != h2 {
		t.Errorf("Expected stable hash, got %s and %s", h1, h2)
	}
	// sha256("secret")
	if h1 != "2bb80d537b1da3e38bd30361aa855686bde0eacd7162fef6a25fe97bf527a25b" {
		t.Errorf("Unexpected hash %s", h1)
	}
}

func TestVerifyPassword(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}

	tests := []struct {
		name  string
		plain string
		hash  string
		want  bool
	}{
		{"Matching sha256", "secret", HashPassword("secret"), true},
		{"Uppercase hex", "secret", "2BB80D537B1DA3E38BD30361AA855686BDE0EACD7162FEF6A25FE97BF527A25B", true},
		{"Wrong plaintext", "Secret", HashPassword("secret"), false},
		{"Empty plaintext", "", HashPassword("secret"), false},
		{"Empty hash", "secret", "", false},
		{"Matching bcrypt", "secret", string(legacy), true},
		{"Wrong bcrypt", "nope", string(legacy), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifyPassword(tt.plain, tt.hash); got != tt.want {
				t.Errorf("VerifyPassword() = %v, want %v", got, tt.want)
			}
		})
	}
}
