package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/canvas/dbopen"
	"github.com/hazyhaar/canvas/kit"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newOwners(t *testing.T) *Owners {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(OwnersSchema))
	return NewOwners(db).WithCost(bcrypt.MinCost)
}

func TestTokenRoundTrip(t *testing.T) {
	o := &Owner{ID: "usr_1", Email: "ada@example.com", DisplayName: "Ada", Provider: "local"}
	tok, err := GenerateToken(testSecret, ClaimsFor(o), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != "usr_1" || claims.DisplayName != "Ada" {
		t.Fatalf("claims = %+v", claims)
	}

	if _, err := ValidateToken([]byte("another-secret-another-secret-xx"), tok); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
	expired, _ := GenerateToken(testSecret, ClaimsFor(o), -time.Minute)
	if _, err := ValidateToken(testSecret, expired); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestGenerateToken_ShortSecret(t *testing.T) {
	_, err := GenerateToken([]byte("short"), &Claims{UserID: "u"}, time.Hour)
	if !errors.Is(err, ErrSecretTooShort) {
		t.Fatalf("err = %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	tok, _ := GenerateToken(testSecret, ClaimsFor(&Owner{ID: "usr_1", DisplayName: "Ada"}), time.Hour)

	var gotUser, gotName string
	h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = kit.GetUserID(r.Context())
		gotName = kit.GetDisplayName(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "usr_1" || gotName != "Ada" {
		t.Fatalf("cookie: user=%q name=%q", gotUser, gotName)
	}

	gotUser = ""
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "usr_1" {
		t.Fatalf("bearer: user=%q", gotUser)
	}

	gotUser = "unchanged"
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "" {
		t.Fatalf("invalid token gave user %q", gotUser)
	}
}

func TestRequireAuth(t *testing.T) {
	h := RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized || !strings.Contains(rec.Body.String(), "authentication required") {
		t.Fatalf("anonymous: %d %s", rec.Code, rec.Body.String())
	}

	tok, _ := GenerateToken(testSecret, ClaimsFor(&Owner{ID: "usr_1"}), time.Hour)
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	rec = httptest.NewRecorder()
	Middleware(testSecret)(h).ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("signed in: %d", rec.Code)
	}
}

func TestOwners_AddAuthenticate(t *testing.T) {
	owners := newOwners(t)
	ctx := context.Background()

	o, err := owners.Add(ctx, " Ada@Example.com ", "Ada", "correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if o.Email != "ada@example.com" {
		t.Fatalf("email = %q", o.Email)
	}

	got, err := owners.Authenticate(ctx, "ada@example.com", "correct horse")
	if err != nil || got.ID != o.ID {
		t.Fatalf("authenticate: %+v %v", got, err)
	}
	if _, err := owners.Authenticate(ctx, "ada@example.com", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := owners.Authenticate(ctx, "bob@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown owner: %v", err)
	}

	if _, err := owners.Add(ctx, "ada@example.com", "Again", "another pass"); !errors.Is(err, ErrOwnerExists) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := owners.Add(ctx, "bob@example.com", "Bob", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password: %v", err)
	}
	if _, err := owners.Add(ctx, "not an email", "X", "long enough"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("bad email: %v", err)
	}
	if n, _ := owners.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
}

func TestOwners_UpsertOAuth(t *testing.T) {
	owners := newOwners(t)
	ctx := context.Background()

	u := &OAuthUser{ProviderUserID: "g-1", Email: "cleo@example.com", Name: "Cleo"}
	first, err := owners.UpsertOAuth(ctx, "google", u)
	if err != nil {
		t.Fatal(err)
	}
	second, err := owners.UpsertOAuth(ctx, "google", u)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID || first.Provider != "google" {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
	// OAuth accounts have no password.
	if _, err := owners.Authenticate(ctx, "cleo@example.com", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("oauth owner password login: %v", err)
	}
	got, err := owners.Get(ctx, first.ID)
	if err != nil || got == nil || got.DisplayName != "Cleo" {
		t.Fatalf("get = %+v %v", got, err)
	}
}

func TestOAuthConfigEnabled(t *testing.T) {
	if (OAuthConfig{}).Enabled() {
		t.Fatal("empty config enabled")
	}
	cfg := OAuthConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "https://canvas.example.com/api/oauth/google/callback"}
	if !cfg.Enabled() {
		t.Fatal("configured provider disabled")
	}
	if p := NewGoogleProvider(cfg); p.RedirectURL != cfg.RedirectURL || len(p.Scopes) != 3 {
		t.Fatalf("provider = %+v", p)
	}
}
