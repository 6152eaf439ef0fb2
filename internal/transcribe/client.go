// Package transcribe sends audio files to an HTTP speech-to-text service.
package transcribe

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vj-go/internal/vj"
)

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 16 << 20

// Client uploads an audio file as multipart form field "file" and reads the
// transcript from the JSON response. The response carries either a
// "transcription" string or a "segments" array of {start, text} objects,
// which is rendered one "[mm:ss] text" line per segment.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     vj.Logger
}

// NewClient creates a Client. timeout bounds each request end to end.
func NewClient(endpoint string, timeout time.Duration, logger vj.Logger) *Client {
	if logger == nil {
		logger = vj.NewNopLogger()
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Transcribe uploads the audio file at audioPath and returns the formatted transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("opening audio: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, f); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.Close()
		return "", fmt.Errorf("posting audio: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	text, err := ParseResponse(body)
	if err != nil {
		return "", err
	}
	c.logger.Debug("transcribed", "path", audioPath, "chars", len(text), "elapsed", time.Since(start))
	return text, nil
}

// ParseResponse extracts the transcript from a service response. A plain
// "transcription" string wins, then timestamped "segments", then a bare
// "text" string as Whisper-style services return it.
func ParseResponse(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", fmt.Errorf("transcription response is not JSON")
	}

	if t := gjson.GetBytes(body, "transcription"); t.Type == gjson.String {
		return strings.TrimSpace(t.String()), nil
	}

	if segments := gjson.GetBytes(body, "segments"); segments.IsArray() {
		var lines []string
		for _, seg := range segments.Array() {
			text := strings.TrimSpace(seg.Get("text").String())
			if text == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("[%s] %s", Timestamp(seg.Get("start").Float()), text))
		}
		return strings.Join(lines, "\n"), nil
	}

	if t := gjson.GetBytes(body, "text"); t.Type == gjson.String {
		return strings.TrimSpace(t.String()), nil
	}
	return "", fmt.Errorf("transcription response has no transcription, segments or text")
}

// Timestamp renders seconds as mm:ss, growing to h:mm:ss past an hour.
func Timestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

var _ vj.Transcriber = (*Client)(nil)
