package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/propdesk/turnover/internal/domain"
)

// ─── Signing Secret ─────────────────────────────────────────────────────────

func TestGenerateSecret_Unique(t *testing.T) {
	a, err := GenerateSecret()
	if err != nil {
		t.Fatalf("GenerateSecret() error: %v", err)
	}
	b, _ := GenerateSecret()
	if len(a) != SecretBytes {
		t.Errorf("len = %d, want %d", len(a), SecretBytes)
	}
	if string(a) == string(b) {
		t.Error("two secrets should differ")
	}
}

func TestLoadOrCreateSecret_Persists(t *testing.T) {
	home := t.TempDir()
	first, err := LoadOrCreateSecret(home)
	if err != nil {
		t.Fatalf("LoadOrCreateSecret() error: %v", err)
	}
	info, err := os.Stat(filepath.Join(home, "keys", "jwt.key"))
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key perm = %v, want 0600", info.Mode().Perm())
	}

	second, err := LoadOrCreateSecret(home)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	if string(first) != string(second) {
		t.Error("reload should return the same secret")
	}
}

func TestLoadOrCreateSecret_Corrupt(t *testing.T) {
	home := t.TempDir()
	os.MkdirAll(filepath.Join(home, "keys"), 0700)
	os.WriteFile(filepath.Join(home, "keys", "jwt.key"), []byte("not-hex"), 0600)
	if _, err := LoadOrCreateSecret(home); err == nil {
		t.Error("corrupt key should fail to load")
	}
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

func newTokens(t *testing.T) *Tokens {
	t.Helper()
	tk, err := NewTokens([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("NewTokens() error: %v", err)
	}
	return tk
}

func TestTokens_RoundTrip(t *testing.T) {
	tk := newTokens(t)
	want := domain.Actor{ID: "worker-7", Role: domain.RoleWorker}

	tok, err := tk.Issue(want, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	got, err := tk.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestTokens_Expired(t *testing.T) {
	tk := newTokens(t)
	tok, _ := tk.Issue(domain.Actor{ID: "w", Role: domain.RoleWorker}, time.Minute)

	tk.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := tk.Verify(tok); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("expired token err = %v, want ErrUnauthorized", err)
	}
}

func TestTokens_WrongSecret(t *testing.T) {
	tok, _ := newTokens(t).Issue(domain.Actor{ID: "w", Role: domain.RoleManager}, 0)
	other, _ := NewTokens([]byte("ffffffffffffffffffffffffffffffff"))
	if _, err := other.Verify(tok); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestTokens_RejectsNoneAlg(t *testing.T) {
	claims := Claims{
		Role: domain.RoleManager,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "mallory",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := newTokens(t).Verify(tok); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("alg=none err = %v, want ErrUnauthorized", err)
	}
}

func TestTokens_IssueValidation(t *testing.T) {
	tk := newTokens(t)
	if _, err := tk.Issue(domain.Actor{Role: domain.RoleWorker}, 0); err == nil {
		t.Error("empty id should be rejected")
	}
	if _, err := tk.Issue(domain.Actor{ID: "w", Role: "admin"}, 0); err == nil {
		t.Error("unknown role should be rejected")
	}
	if _, err := NewTokens(nil); err == nil {
		t.Error("empty secret should be rejected")
	}
}

func TestTokens_Garbage(t *testing.T) {
	if _, err := newTokens(t).Verify("not.a.jwt"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}
