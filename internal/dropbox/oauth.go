package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"

	"vj-go/internal/vj"
)

// Endpoint is the Dropbox OAuth2 endpoint. Dropbox expects the client ID in
// the form body for PKCE apps, which have no secret.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://www.dropbox.com/oauth2/authorize",
	TokenURL:  "https://api.dropboxapi.com/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

// ErrNoToken is returned when no token has been stored yet.
var ErrNoToken = errors.New("dropbox: not logged in")

// OAuthConfig returns the OAuth2 configuration for a Dropbox app key.
func OAuthConfig(appKey string) *oauth2.Config {
	return &oauth2.Config{
		ClientID: appKey,
		Endpoint: Endpoint,
	}
}

// Login is one PKCE authorization attempt without a redirect URI: the user
// opens AuthCodeURL, approves the app and pastes the code shown by Dropbox.
type Login struct {
	cfg      *oauth2.Config
	verifier string
}

// NewLogin starts a login with a fresh PKCE verifier.
func NewLogin(cfg *oauth2.Config) *Login {
	return &Login{cfg: cfg, verifier: oauth2.GenerateVerifier()}
}

// AuthCodeURL returns the URL the user must visit. Offline access yields a
// long-lived refresh token.
func (l *Login) AuthCodeURL() string {
	return l.cfg.AuthCodeURL("",
		oauth2.S256ChallengeOption(l.verifier),
		oauth2.SetAuthURLParam("token_access_type", "offline"),
	)
}

// Exchange trades the pasted authorization code for a token.
func (l *Login) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := l.cfg.Exchange(ctx, code, oauth2.VerifierOption(l.verifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("dropbox returned no refresh token")
	}
	return tok, nil
}

// TokenStore persists OAuth2 tokens between runs.
type TokenStore interface {
	Load(ctx context.Context) (*oauth2.Token, error)
	Save(ctx context.Context, tok *oauth2.Token) error
}

// NewRefresher returns a RefreshFunc that redeems the stored refresh token and
// writes the refreshed token back to the store.
func NewRefresher(cfg *oauth2.Config, store TokenStore) RefreshFunc {
	return func(ctx context.Context) (string, error) {
		stored, err := store.Load(ctx)
		if err != nil {
			return "", fmt.Errorf("loading token: %w", err)
		}
		if stored.RefreshToken == "" {
			return "", fmt.Errorf("stored token has no refresh token: %w", ErrNoToken)
		}

		// A token without an access token is never valid, so the source refreshes.
		tok, err := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
		if err != nil {
			return "", fmt.Errorf("refreshing token: %w", err)
		}
		if tok.RefreshToken == "" {
			tok.RefreshToken = stored.RefreshToken
		}
		if err := store.Save(ctx, tok); err != nil {
			return "", fmt.Errorf("saving refreshed token: %w", err)
		}
		return tok.AccessToken, nil
	}
}

// NewClientFromStore builds a Client from a stored token. An expired access
// token is refreshed up front.
func NewClientFromStore(ctx context.Context, cfg *oauth2.Config, store TokenStore, opts ...Option) (*Client, error) {
	tok, err := store.Load(ctx)
	if err != nil {
		return nil, err
	}
	refresh := NewRefresher(cfg, store)

	access := tok.AccessToken
	if !tok.Valid() {
		if access, err = refresh(ctx); err != nil {
			return nil, err
		}
	}
	return NewClient(access, refresh, opts...), nil
}

// FileTokenStore keeps the token as age-encrypted JSON on disk. Save needs
// only the public key; Load needs an unlocked DecryptionContext.
type FileTokenStore struct {
	path string
	enc  vj.Encryptor
	dec  vj.DecryptionContext
}

// NewFileTokenStore creates a store at path. dec may be nil for write-only use.
func NewFileTokenStore(path string, enc vj.Encryptor, dec vj.DecryptionContext) *FileTokenStore {
	return &FileTokenStore{path: path, enc: enc, dec: dec}
}

// Load decrypts and decodes the stored token.
func (s *FileTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	if s.dec == nil {
		return nil, fmt.Errorf("token store is locked")
	}
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token file: %w", err)
	}

	var plain bytes.Buffer
	if err := s.dec.Decrypt(bytes.NewReader(sealed), &plain); err != nil {
		return nil, fmt.Errorf("decrypting token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(plain.Bytes(), &tok); err != nil {
		return nil, fmt.Errorf("decoding token: %w", err)
	}
	return &tok, nil
}

// Save encodes and encrypts the token, replacing the file atomically.
func (s *FileTokenStore) Save(ctx context.Context, tok *oauth2.Token) error {
	plain, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	var sealed bytes.Buffer
	if err := s.enc.Encrypt(bytes.NewReader(plain), &sealed); err != nil {
		return fmt.Errorf("encrypting token: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing token file: %w", err)
	}
	return nil
}

var _ TokenStore = (*FileTokenStore)(nil)
