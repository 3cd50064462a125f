package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseEd25519(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, err := m.Issue(Grant{Subject: "alice", SessionID: "sid-1", Generation: 3})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.Verify(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "alice" || claims.SID != "sid-1" || claims.Generation != 3 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute))}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue(Grant{Subject: "bob", SessionID: "sid", Generation: 1, TTL: -time.Second})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.Verify(token); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
}

func TestVerifyIssuerAndAudience(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")
	m, err := NewManager(Config{
		AccessTTL:     time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    key,
		Issuer:        "studyclub",
		Audience:      "api",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	access, err := m.Issue(Grant{Subject: "u", SessionID: "s1", Generation: 0})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.Verify(access); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	wrongIssuer := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "other",
		Audience:  gjwt.ClaimStrings{"api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	bad, _ := gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongIssuer).SignedString(key)
	if _, err := m.Verify(bad); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	wrongAudience := AccessClaims{SID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "studyclub",
		Audience:  gjwt.ClaimStrings{"other-api"},
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	bad, _ = gjwt.NewWithClaims(gjwt.SigningMethodHS256, wrongAudience).SignedString(key)
	if _, err := m.Verify(bad); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestNewManagerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero ttl", cfg: Config{SigningMethod: MethodHS256, PrivateKey: []byte("k")}},
		{name: "hs256 without key", cfg: Config{AccessTTL: time.Minute, SigningMethod: MethodHS256}},
		{name: "ed25519 without public key", cfg: Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519}},
		{name: "unknown method", cfg: Config{AccessTTL: time.Minute, SigningMethod: "rs256"}},
		{name: "leeway too large", cfg: Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: time.Hour}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewManager(tc.cfg); err == nil {
				t.Fatal("expected config error")
			}
		})
	}
}

func TestExpiresAtReadsUnverifiedExp(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, err := m.Issue(Grant{Subject: "u", SessionID: "s", Generation: 0, TTL: 30 * time.Second})
	if err != nil {
		t.Fatalf("create access: %v", err)
	}

	exp, ok := ExpiresAt(token)
	if !ok {
		t.Fatal("expected exp to be readable")
	}
	if d := time.Until(exp); d <= 0 || d > 31*time.Second {
		t.Fatalf("unexpected exp distance %s", d)
	}

	now := time.Now()
	if ExpiresWithin(token, now, 5*time.Second) {
		t.Fatal("token should not be within 5s of expiry")
	}
	if !ExpiresWithin(token, now, time.Minute) {
		t.Fatal("token should be within 1m of expiry")
	}
}

func TestExpiresAtIgnoresOpaqueTokens(t *testing.T) {
	for _, tok := range []string{"", "opaque-token", "a.b.c"} {
		if _, ok := ExpiresAt(tok); ok {
			t.Fatalf("expected %q to be treated as opaque", tok)
		}
		if ExpiresWithin(tok, time.Now(), time.Hour) {
			t.Fatalf("opaque token %q must never be treated as expiring", tok)
		}
	}
}

func TestVerifyOnlyManagerCannotIssue(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Issue(Grant{Subject: "u"}); err == nil {
		t.Fatal("expected issue without private key to fail")
	}
}

func TestIssueDistinctTokensForSameGrant(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	g := Grant{Subject: "u", SessionID: "s", Generation: 2}
	a, err := m.Issue(g)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	b, err := m.Issue(g)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens for repeated grants")
	}

	claims, err := m.Verify(a)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if d := claims.ExpiresAt.Sub(claims.IssuedAt.Time); d != time.Minute {
		t.Fatalf("expected default ttl, got %s", d)
	}
}
