package dropbox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"vj-go/internal/encryption"
)

func newTokenStore(t *testing.T) *FileTokenStore {
	t.Helper()
	enc := encryption.NewTestEncryptor()
	dec, err := enc.Unlock("")
	if err != nil {
		t.Fatal(err)
	}
	return NewFileTokenStore(filepath.Join(t.TempDir(), "token.age"), enc, dec)
}

func TestFileTokenStore_RoundTrip(t *testing.T) {
	t.Parallel()
	store := newTokenStore(t)
	ctx := context.Background()

	if _, err := store.Load(ctx); !errors.Is(err, ErrNoToken) {
		t.Fatalf("Load() before Save error = %v, want ErrNoToken", err)
	}

	want := &oauth2.Token{AccessToken: "sl.abc", RefreshToken: "r1", TokenType: "bearer", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(store.path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.HasPrefix(string(raw), "{") {
		t.Error("token file is not sealed")
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestFileTokenStore_Locked(t *testing.T) {
	t.Parallel()
	store := NewFileTokenStore(filepath.Join(t.TempDir(), "token.age"), encryption.NewTestEncryptor(), nil)
	if err := store.Save(context.Background(), &oauth2.Token{RefreshToken: "r"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := store.Load(context.Background()); err == nil {
		t.Error("Load() without decryption context should fail")
	}
}

func newTokenServer(t *testing.T, access string) (*httptest.Server, *[]url.Values) {
	t.Helper()
	var forms []url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		forms = append(forms, r.PostForm)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": access,
			"token_type":   "bearer",
			"expires_in":   14400,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &forms
}

func TestNewRefresher(t *testing.T) {
	t.Parallel()
	srv, forms := newTokenServer(t, "sl.new")

	cfg := OAuthConfig("app-key")
	cfg.Endpoint.TokenURL = srv.URL

	store := newTokenStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, &oauth2.Token{AccessToken: "sl.old", RefreshToken: "r1"}); err != nil {
		t.Fatal(err)
	}

	token, err := NewRefresher(cfg, store)(ctx)
	if err != nil {
		t.Fatalf("refresh error = %v", err)
	}
	if token != "sl.new" {
		t.Errorf("token = %q, want sl.new", token)
	}

	if len(*forms) != 1 {
		t.Fatalf("token requests = %d, want 1", len(*forms))
	}
	form := (*forms)[0]
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "r1" || form.Get("client_id") != "app-key" {
		t.Errorf("token request form = %v", form)
	}

	saved, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if saved.AccessToken != "sl.new" || saved.RefreshToken != "r1" {
		t.Errorf("saved token = %+v, want new access token and original refresh token", saved)
	}
}

func TestNewRefresher_NoRefreshToken(t *testing.T) {
	t.Parallel()
	store := newTokenStore(t)
	ctx := context.Background()
	if err := store.Save(ctx, &oauth2.Token{AccessToken: "sl.old"}); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRefresher(OAuthConfig("k"), store)(ctx); !errors.Is(err, ErrNoToken) {
		t.Errorf("error = %v, want ErrNoToken", err)
	}
}

func TestNewClientFromStore_RefreshesExpired(t *testing.T) {
	t.Parallel()
	srv, forms := newTokenServer(t, "sl.fresh")
	cfg := OAuthConfig("app-key")
	cfg.Endpoint.TokenURL = srv.URL

	store := newTokenStore(t)
	ctx := context.Background()
	expired := &oauth2.Token{AccessToken: "sl.old", RefreshToken: "r1", Expiry: time.Now().Add(-time.Hour)}
	if err := store.Save(ctx, expired); err != nil {
		t.Fatal(err)
	}

	c, err := NewClientFromStore(ctx, cfg, store)
	if err != nil {
		t.Fatalf("NewClientFromStore() error = %v", err)
	}
	if c.AccessToken() != "sl.fresh" {
		t.Errorf("AccessToken() = %q, want sl.fresh", c.AccessToken())
	}
	if len(*forms) != 1 {
		t.Errorf("token requests = %d, want 1", len(*forms))
	}
}

func TestLogin_AuthCodeURL(t *testing.T) {
	t.Parallel()
	l := NewLogin(OAuthConfig("app-key"))

	u, err := url.Parse(l.AuthCodeURL())
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":             "app-key",
		"response_type":         "code",
		"code_challenge_method": "S256",
		"token_access_type":     "offline",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
	if q.Get("code_challenge") == "" {
		t.Error("code_challenge missing")
	}
	if u.Host != "www.dropbox.com" {
		t.Errorf("host = %q", u.Host)
	}
}
