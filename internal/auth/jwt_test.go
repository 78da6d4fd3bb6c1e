package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/stackit/internal/model"
)

// newTestTokenService creates a TokenService with a fixed, known secret so
// tests are deterministic.
func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	ts, err := NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return ts
}

func testIdentity() *model.Identity {
	return &model.Identity{
		ID:    "109876543210",
		Name:  "Ada Lovelace",
		Email: "ada@example.com",
		Image: "https://lh3.googleusercontent.com/a/ada",
	}
}

// =========================================================================
// TOKEN SERVICE CONSTRUCTION TESTS
// =========================================================================

func TestNewTokenService_ShortSecret(t *testing.T) {
	_, err := NewTokenService("short", time.Hour)
	if err == nil {
		t.Fatal("NewTokenService() should reject secrets shorter than 16 chars")
	}
}

func TestNewTokenService_DefaultTTL(t *testing.T) {
	ts, err := NewTokenService("this-is-16-chars", 0)
	if err != nil {
		t.Fatalf("NewTokenService() unexpected error: %v", err)
	}
	if ts.TTL() != DefaultTTL {
		t.Errorf("TTL() = %v, want %v", ts.TTL(), DefaultTTL)
	}
}

// =========================================================================
// ISSUE / VALIDATE TESTS
// =========================================================================

func TestIssue_LooksLikeJWT(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.Issue(testIdentity())
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if got := strings.Count(token, "."); got != 2 {
		t.Errorf("token has %d dots, want 2 (header.payload.signature)", got)
	}
}

func TestIssue_RequiresSubject(t *testing.T) {
	ts := newTestTokenService(t)

	if _, err := ts.Issue(nil); err == nil {
		t.Error("Issue(nil) should fail")
	}
	if _, err := ts.Issue(&model.Identity{Name: "no id"}); err == nil {
		t.Error("Issue() without an id should fail")
	}
}

func TestValidate_RoundTripCarriesProfile(t *testing.T) {
	ts := newTestTokenService(t)
	want := testIdentity()

	token, err := ts.Issue(want)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	got, err := ts.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if *got != *want {
		t.Errorf("Validate() = %+v, want %+v", got, want)
	}
}

func TestValidate_Expired(t *testing.T) {
	ts := newTestTokenService(t)

	token, err := ts.IssueWithDuration(testIdentity(), -time.Minute)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}

	_, err = ts.Validate(token)
	if err == nil {
		t.Fatal("Validate() should reject an expired token")
	}
	if !strings.Contains(err.Error(), "expired") {
		t.Errorf("error = %v, want it to mention expiry", err)
	}
}

func TestValidate_WrongSecret(t *testing.T) {
	ts := newTestTokenService(t)
	other, _ := NewTokenService("a-completely-different-secret", time.Hour)

	token, _ := other.Issue(testIdentity())
	if _, err := ts.Validate(token); err == nil {
		t.Error("Validate() accepted a token signed with another secret")
	}
}

func TestValidate_WrongIssuer(t *testing.T) {
	ts := newTestTokenService(t)

	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(ts.secret)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Error("Validate() accepted a token from another issuer")
	}
}

func TestValidate_NoneAlgorithm(t *testing.T) {
	ts := newTestTokenService(t)

	c := claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "u1",
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, c).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := ts.Validate(token); err == nil {
		t.Error("Validate() accepted an unsigned token")
	}
}

func TestValidate_Garbage(t *testing.T) {
	ts := newTestTokenService(t)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := ts.Validate(tok); err == nil {
			t.Errorf("Validate(%q) should fail", tok)
		}
	}
}
