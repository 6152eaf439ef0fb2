// Package dropbox is a thin client for the Dropbox HTTP API: folder listing,
// temporary download links and uploads, with one automatic token refresh on
// authorization failure.
package dropbox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"vj-go/internal/model"
	"vj-go/internal/vj"
)

const (
	DefaultAPIURL     = "https://api.dropboxapi.com/2"
	DefaultContentURL = "https://content.dropboxapi.com/2"

	// DefaultChunkSize is the largest file sent in a single upload call; larger
	// files go through an upload session in chunks of this size.
	DefaultChunkSize = 8 << 20

	defaultMaxRetries = 3
	defaultRetryBase  = time.Second
	maxRetryAfter     = time.Minute
)

// ErrUnauthorized is returned (wrapped in an *APIError) when a request is still
// rejected after refreshing the access token. The user must log in again.
var ErrUnauthorized = errors.New("dropbox: unauthorized")

// APIError is a non-2xx response from Dropbox.
type APIError struct {
	Status  int
	Summary string // error_summary from the response body, when present
}

func (e *APIError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("dropbox: %d %s", e.Status, e.Summary)
	}
	return fmt.Sprintf("dropbox: HTTP %d", e.Status)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

// RefreshFunc obtains a new access token. It is called at most once per request.
type RefreshFunc func(ctx context.Context) (string, error)

// Client talks to the Dropbox API. It is safe for concurrent use.
type Client struct {
	apiURL     string
	contentURL string
	httpClient *http.Client
	chunkSize  int64
	refresh    RefreshFunc
	logger     vj.Logger
	maxRetries uint64
	retryBase  time.Duration

	mu    sync.Mutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs points the client at different API and content hosts.
func WithBaseURLs(apiURL, contentURL string) Option {
	return func(c *Client) {
		c.apiURL = strings.TrimRight(apiURL, "/")
		c.contentURL = strings.TrimRight(contentURL, "/")
	}
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithChunkSize sets the single-call upload limit and session chunk size.
func WithChunkSize(n int64) Option {
	return func(c *Client) { c.chunkSize = n }
}

// WithRetry sets how often a rate-limited request is retried and the first backoff.
func WithRetry(maxRetries uint64, base time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryBase = base
	}
}

// WithLogger sets the logger used for refresh events.
func WithLogger(l vj.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client holding accessToken. refresh may be nil, in which
// case authorization failures are returned as-is.
func NewClient(accessToken string, refresh RefreshFunc, opts ...Option) *Client {
	c := &Client{
		apiURL:     DefaultAPIURL,
		contentURL: DefaultContentURL,
		httpClient: http.DefaultClient,
		chunkSize:  DefaultChunkSize,
		refresh:    refresh,
		logger:     vj.NewNopLogger(),
		maxRetries: defaultMaxRetries,
		retryBase:  defaultRetryBase,
		token:      accessToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AccessToken returns the token currently in use.
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// requestFunc builds a fresh request for each attempt so bodies can be replayed.
type requestFunc func(ctx context.Context, token string) (*http.Request, error)

// do sends a request, refreshing the token and replaying the request exactly
// once if Dropbox reports an invalid or expired token.
func (c *Client) do(ctx context.Context, build requestFunc) (*http.Response, error) {
	token := c.AccessToken()
	resp, err := c.send(ctx, build, token)
	if err != nil {
		return nil, err
	}
	if !isAuthFailure(resp) || c.refresh == nil {
		return resp, nil
	}
	drain(resp)

	newToken, err := c.refreshToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	return c.send(ctx, build, newToken)
}

// send performs one logical request, retrying with exponential backoff while
// Dropbox answers 429 or 503. A Retry-After header stretches the wait.
func (c *Client) send(ctx context.Context, build requestFunc, token string) (*http.Response, error) {
	var (
		resp       *http.Response
		retryAfter time.Duration
	)
	exp := retry.NewExponential(c.retryBase)
	backoff := retry.WithMaxRetries(c.maxRetries, retry.BackoffFunc(func() (time.Duration, bool) {
		d, stop := exp.Next()
		if retryAfter > d {
			d = retryAfter
		}
		return d, stop
	}))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := build(ctx, token)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		r, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", req.URL.Path, err)
		}
		if r.StatusCode == http.StatusTooManyRequests || r.StatusCode == http.StatusServiceUnavailable {
			retryAfter = parseRetryAfter(r.Header.Get("Retry-After"))
			apiErr := readAPIError(r)
			drain(r)
			c.logger.Debug("dropbox rate limited", "path", req.URL.Path, "status", r.StatusCode, "retry_after", retryAfter)
			return retry.RetryableError(apiErr)
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// parseRetryAfter reads a Retry-After value in seconds, capped at maxRetryAfter.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

// refreshToken refreshes unless another request already replaced the stale token.
func (c *Client) refreshToken(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != stale {
		return c.token, nil
	}
	token, err := c.refresh(ctx)
	if err != nil {
		return "", err
	}
	c.logger.Info("dropbox access token refreshed")
	c.token = token
	return token, nil
}

// isAuthFailure reports a 401 or an error body naming an invalid or expired
// access token. The body is buffered so callers can still read it.
func isAuthFailure(resp *http.Response) bool {
	if resp.StatusCode == http.StatusUnauthorized {
		return true
	}
	if resp.StatusCode < 400 {
		return false
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	s := string(body)
	return strings.Contains(s, "expired_access_token") || strings.Contains(s, "invalid_access_token")
}

// decode checks the status and decodes a JSON body into out (if non-nil).
func decode(resp *http.Response, out any) error {
	defer drain(resp)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}
	var payload struct {
		ErrorSummary string `json:"error_summary"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.ErrorSummary != "" {
		apiErr.Summary = payload.ErrorSummary
	} else {
		apiErr.Summary = strings.TrimSpace(string(body))
	}
	return apiErr
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// rpc posts a JSON argument to an API endpoint.
func (c *Client) rpc(ctx context.Context, endpoint string, arg, out any) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encoding %s argument: %w", endpoint, err)
	}
	resp, err := c.do(ctx, func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// content posts raw bytes to a content endpoint with the argument in the
// Dropbox-API-Arg header.
func (c *Client) content(ctx context.Context, endpoint string, arg any, body []byte, out any) error {
	header, err := headerArg(arg)
	if err != nil {
		return fmt.Errorf("encoding %s argument: %w", endpoint, err)
	}
	resp, err := c.do(ctx, func(ctx context.Context, token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.contentURL+endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Dropbox-API-Arg", header)
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// headerArg encodes v as JSON safe for an HTTP header: every non-ASCII
// character is written as a \u escape.
func headerArg(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range string(raw) {
		switch {
		case r < 0x80:
			b.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String(), nil
}

type listFolderResult struct {
	Entries []model.RemoteEntry `json:"entries"`
	Cursor  string              `json:"cursor"`
	HasMore bool                `json:"has_more"`
}

// ListFiles lists the immediate children of folder, following pagination.
// A folder that does not exist yet lists as empty.
func (c *Client) ListFiles(ctx context.Context, folder string) ([]model.RemoteEntry, error) {
	var page listFolderResult
	err := c.rpc(ctx, "/files/list_folder", map[string]any{
		"path":            apiPath(folder),
		"recursive":       false,
		"include_deleted": false,
	}, &page)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && strings.Contains(apiErr.Summary, "not_found") {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %q: %w", folder, err)
	}

	entries := page.Entries
	for page.HasMore {
		cursor := page.Cursor
		page = listFolderResult{}
		if err := c.rpc(ctx, "/files/list_folder/continue", map[string]string{"cursor": cursor}, &page); err != nil {
			return nil, fmt.Errorf("continuing listing of %q: %w", folder, err)
		}
		entries = append(entries, page.Entries...)
	}
	return entries, nil
}

// DownloadLink returns a short-lived URL for the file at path.
func (c *Client) DownloadLink(ctx context.Context, path string) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	if err := c.rpc(ctx, "/files/get_temporary_link", map[string]string{"path": apiPath(path)}, &out); err != nil {
		return "", fmt.Errorf("getting temporary link for %s: %w", path, err)
	}
	if out.Link == "" {
		return "", fmt.Errorf("%s: %w", path, vj.ErrNoTemporaryLink)
	}
	return out.Link, nil
}

type commitInfo struct {
	Path           string `json:"path"`
	Mode           string `json:"mode"`
	Autorename     bool   `json:"autorename"`
	Mute           bool   `json:"mute"`
	ClientModified string `json:"client_modified,omitempty"`
}

type uploadCursor struct {
	SessionID string `json:"session_id"`
	Offset    int64  `json:"offset"`
}

// UploadFile uploads the local file to remotePath, overwriting what is there.
// Files up to the chunk size go in one call; larger files use an upload session.
func (c *Client) UploadFile(ctx context.Context, localPath, remotePath string, modified *time.Time) (*model.UploadResult, error) {
	remotePath = vj.SanitizeRemotePath(remotePath)
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", localPath, err)
	}

	commit := commitInfo{Path: apiPath(remotePath), Mode: "overwrite", Autorename: true, Mute: true}
	if modified != nil {
		commit.ClientModified = modified.UTC().Format(time.RFC3339)
	}

	var meta model.UploadResult
	if info.Size() <= c.chunkSize {
		data, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
		if err := c.content(ctx, "/files/upload", commit, data, &meta); err != nil {
			return nil, fmt.Errorf("uploading %s: %w", remotePath, err)
		}
		return &meta, nil
	}

	if err := c.uploadSession(ctx, f, info.Size(), commit, &meta); err != nil {
		return nil, fmt.Errorf("uploading %s: %w", remotePath, err)
	}
	return &meta, nil
}

func (c *Client) uploadSession(ctx context.Context, r io.Reader, size int64, commit commitInfo, out *model.UploadResult) error {
	buf := make([]byte, c.chunkSize)
	next := func() ([]byte, error) {
		n, err := io.ReadFull(r, buf)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return append([]byte(nil), buf[:n]...), nil
	}

	chunk, err := next()
	if err != nil {
		return fmt.Errorf("reading chunk: %w", err)
	}
	var start struct {
		SessionID string `json:"session_id"`
	}
	if err := c.content(ctx, "/files/upload_session/start", map[string]bool{"close": false}, chunk, &start); err != nil {
		return fmt.Errorf("starting session: %w", err)
	}

	cursor := uploadCursor{SessionID: start.SessionID, Offset: int64(len(chunk))}
	for size-cursor.Offset > c.chunkSize {
		if chunk, err = next(); err != nil {
			return fmt.Errorf("reading chunk: %w", err)
		}
		arg := map[string]any{"cursor": cursor, "close": false}
		if err := c.content(ctx, "/files/upload_session/append_v2", arg, chunk, nil); err != nil {
			return fmt.Errorf("appending at offset %d: %w", cursor.Offset, err)
		}
		cursor.Offset += int64(len(chunk))
	}

	if chunk, err = next(); err != nil {
		return fmt.Errorf("reading chunk: %w", err)
	}
	arg := map[string]any{"cursor": cursor, "commit": commit}
	if err := c.content(ctx, "/files/upload_session/finish", arg, chunk, out); err != nil {
		return fmt.Errorf("finishing session: %w", err)
	}
	return nil
}

// apiPath converts a remote path to Dropbox form: the root is "" and every
// other path starts with "/".
func apiPath(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") && !strings.HasPrefix(p, "id:") {
		p = "/" + p
	}
	return p
}

var _ vj.RemoteStore = (*Client)(nil)
