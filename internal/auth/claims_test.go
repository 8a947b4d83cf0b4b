package auth

import (
	"errors"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("home-assistant", testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "home-assistant" {
		t.Errorf("subject = %q, want home-assistant", claims.Subject)
	}
	if claims.ID == "" {
		t.Error("token ID missing")
	}
}

func TestGenerateToken_RequiresSubject(t *testing.T) {
	if _, err := GenerateToken("", testSecret, 60); err == nil {
		t.Error("empty subject accepted")
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	token, err := GenerateToken("client", testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	if _, err := ParseToken(token, "another-secret-another-secret-32"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Tampered(t *testing.T) {
	token, err := GenerateToken("client", testSecret, 60)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	if _, err := ParseToken(token+"x", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}

func TestParseToken_Garbage(t *testing.T) {
	if _, err := ParseToken("not.a.jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
	}
}
