// Sends backup files to a Telegram chat through the Bot API.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// TelegramURL is the Bot API base URL.
	TelegramURL = "https://api.telegram.org"
	// TelegramInterval is the minimum time between uploads. The Bot API
	// allows about one message per second per chat.
	TelegramInterval = time.Second
)

// Telegram uploads files as documents to one chat.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewTelegram returns a transport posting to chatID with the bot token.
func NewTelegram(token, chatID string) *Telegram {
	return &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: TelegramURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Every(TelegramInterval), 1),
		now:     time.Now,
	}
}

// Name implements [Transport].
func (t *Telegram) Name() string { return "telegram" }

// telegramResponse is the envelope of every Bot API reply.
type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send implements [Transport].
func (t *Telegram) Send(ctx context.Context, path string) error {
	fi, err := statFile(path)
	if err != nil {
		return err
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	body, contentType, err := t.form(path, fi)
	if err != nil {
		return err
	}
	endpoint := t.baseURL + "/bot" + t.token + "/sendDocument"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := t.client.Do(req)
	if err != nil {
		// The URL holds the token; keep it out of the message.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("%w: request failed: %w", ErrAPI, err)
	}
	defer func() { _ = resp.Body.Close() }()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrAPI, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrInvalidToken
	}
	var r telegramResponse
	if err := json.Unmarshal(respBody, &r); err != nil {
		return fmt.Errorf("%w: status %d: %s", ErrAPI, resp.StatusCode, respBody)
	}
	if r.ErrorCode == http.StatusBadRequest && strings.Contains(strings.ToLower(r.Description), "chat not found") {
		return fmt.Errorf("%w: %q", ErrChatNotFound, t.chatID)
	}
	if !r.OK {
		if r.Description == "" {
			r.Description = "unknown error"
		}
		return fmt.Errorf("%w: %s", ErrAPI, r.Description)
	}
	return nil
}

func (t *Telegram) form(path string, fi os.FileInfo) (io.Reader, string, error) {
	f, err := os.Open(path) //nolint:gosec // G304: backup path from the store configuration
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := [][2]string{
		{"chat_id", t.chatID},
		{"caption", t.caption(fi)},
		{"parse_mode", "HTML"},
	}
	for _, kv := range fields {
		if err := w.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func (t *Telegram) caption(fi os.FileInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Backup created on %s</b>\n", t.now().Format("2/1/2006 at 15:04"))
	fmt.Fprintf(&b, "<b>Filename:</b> %s\n", html.EscapeString(fi.Name()))
	fmt.Fprintf(&b, "<b>File size:</b> %.2f KB\n", float64(fi.Size())/1024)
	fmt.Fprintf(&b, "<b>System:</b> %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return b.String()
}
