package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestNewSessionTokenIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token := NewSessionToken()
		if token == "" {
			t.Fatal("NewSessionToken() returned empty token")
		}
		if seen[token] {
			t.Fatalf("duplicate token %s", token)
		}
		seen[token] = true
	}
}

func basic(raw string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

func TestParseBasic(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		email    string
		password string
		wantErr  bool
	}{
		{name: "valid", header: basic("ada@example.com:secret"), email: "ada@example.com", password: "secret"},
		{name: "password with colon", header: basic("ada@example.com:se:cret"), email: "ada@example.com", password: "se:cret"},
		{name: "lowercase scheme", header: "basic " + base64.StdEncoding.EncodeToString([]byte("a@b.c:pw")), email: "a@b.c", password: "pw"},
		{name: "empty", header: "", wantErr: true},
		{name: "bearer scheme", header: "Bearer abc", wantErr: true},
		{name: "not base64", header: "Basic !!!", wantErr: true},
		{name: "no separator", header: basic("ada@example.com"), wantErr: true},
		{name: "empty password", header: basic("ada@example.com:"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email, password, err := ParseBasic(tt.header)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedCredentials) {
					t.Fatalf("ParseBasic() error = %v, want ErrMalformedCredentials", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBasic() error = %v", err)
			}
			if email != tt.email || password != tt.password {
				t.Fatalf("ParseBasic() = %q, %q; want %q, %q", email, password, tt.email, tt.password)
			}
		})
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if hash == "correct horse" {
		t.Fatal("hash equals plaintext")
	}
	if err := CheckPassword(hash, "correct horse"); err != nil {
		t.Fatalf("CheckPassword() error = %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("CheckPassword() error = %v, want ErrPasswordMismatch", err)
	}
}
