package utils

import "testing"

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken("secret", 42, 2, 15)
	if err != nil {
		t.Fatal(err)
	}
	userID, role, err := ParseToken("secret", tok)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != 42 || role != 2 {
		t.Errorf("got sub=%d role=%d, want 42/2", userID, role)
	}
}

func TestInitTokenHasNoRole(t *testing.T) {
	tok, err := NewInitToken("secret", 7, 2)
	if err != nil {
		t.Fatal(err)
	}
	userID, role, err := ParseToken("secret", tok)
	if err != nil {
		t.Fatal(err)
	}
	if userID != 7 || role != 0 {
		t.Errorf("got sub=%d role=%d, want 7/0", userID, role)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	tok, err := NewRefreshToken("secret", 1, 0, 30)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ParseToken("other", tok); err != ErrTokenInvalid {
		t.Errorf("err = %v, want ErrTokenInvalid", err)
	}
}

func TestParseTokenExpired(t *testing.T) {
	tok, err := NewAccessToken("secret", 1, 0, -1)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := ParseToken("secret", tok); err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestParseTokenMissingAndGarbage(t *testing.T) {
	if _, _, err := ParseToken("secret", ""); err != ErrTokenMissing {
		t.Errorf("empty token err = %v, want ErrTokenMissing", err)
	}
	if _, _, err := ParseToken("secret", "not.a.jwt"); err != ErrTokenInvalid {
		t.Errorf("garbage token err = %v, want ErrTokenInvalid", err)
	}
}
