package onboard

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGeneratePassword_Length(t *testing.T) {
	password, err := GeneratePassword()
	if err != nil {
		t.Fatalf("GeneratePassword returned error: %v", err)
	}
	if len(password) != PasswordLength {
		t.Errorf("expected length %d, got %d", PasswordLength, len(password))
	}
}

func TestGeneratePassword_AlphabetOnly(t *testing.T) {
	for i := 0; i < 50; i++ {
		password, err := GeneratePassword()
		if err != nil {
			t.Fatalf("GeneratePassword returned error: %v", err)
		}
		for _, c := range password {
			if !strings.ContainsRune(passwordAlphabet, c) {
				t.Fatalf("password %q contains %q outside the alphabet", password, c)
			}
		}
	}
}

func TestGeneratePassword_NoAmbiguousCharacters(t *testing.T) {
	// The sheet is handed out on paper; these glyphs are too easy to confuse.
	for _, c := range "0O1lI" {
		if strings.ContainsRune(passwordAlphabet, c) {
			t.Errorf("alphabet must not contain ambiguous character %q", c)
		}
	}
}

func TestGeneratePassword_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		password, err := GeneratePassword()
		if err != nil {
			t.Fatalf("GeneratePassword returned error: %v", err)
		}
		if seen[password] {
			t.Fatalf("generated duplicate password %q", password)
		}
		seen[password] = true
	}
}

func TestHashPassword_VerifiesWithBcrypt(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")); err != nil {
		t.Errorf("hash does not verify against original password: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("wrong")); err == nil {
		t.Error("hash verified against the wrong password")
	}
}
