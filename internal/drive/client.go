// Package drive uploads exports to and imports documents from Google Drive.
package drive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"

	maxDownload = 32 << 20
)

var (
	ErrDrive         = errors.New("cloud storage request failed")
	ErrNotConfigured = errors.New("cloud storage is not configured")
)

type Config struct {
	TokenSource oauth2.TokenSource
	BaseURL     string
	UploadURL   string
	HTTPClient  *http.Client
}

type Client struct {
	cfg    Config
	tokens oauth2.TokenSource
	http   *http.Client
}

// File is a downloaded document. Binary content is returned as a base64 data
// URL, text content verbatim.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Content  string `json:"content"`
}

// StaticToken wraps a pre-issued access token.
func StaticToken(accessToken string) oauth2.TokenSource {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	c := &Client{cfg: cfg}
	if cfg.TokenSource != nil {
		c.tokens = oauth2.ReuseTokenSource(nil, cfg.TokenSource)
		c.http = &http.Client{
			Timeout:   cfg.HTTPClient.Timeout,
			Transport: &oauth2.Transport{Source: c.tokens, Base: cfg.HTTPClient.Transport},
		}
	}
	return c
}

func (c *Client) Configured() bool {
	return c.tokens != nil
}

// Authenticate returns a valid access token, refreshing it when needed.
func (c *Client) Authenticate(_ context.Context) (*oauth2.Token, error) {
	if c.tokens == nil {
		return nil, fmt.Errorf("%w: %w", ErrDrive, ErrNotConfigured)
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token: %w", ErrDrive, err)
	}
	return tok, nil
}

// Upload stores content as a new file and returns its id.
func (c *Client) Upload(ctx context.Context, name string, content []byte, mimeType string) (string, error) {
	if _, err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	body, contentType, err := multipartBody(name, content, mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrDrive, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, body)
	if err != nil {
		return "", fmt.Errorf("%w: build upload: %w", ErrDrive, err)
	}
	req.Header.Set("Content-Type", contentType)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.doJSON(req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: upload response has no id", ErrDrive)
	}
	return out.ID, nil
}

// Download fetches metadata and content for fileID.
func (c *Client) Download(ctx context.Context, fileID string) (File, error) {
	if _, err := c.Authenticate(ctx); err != nil {
		return File{}, err
	}
	if strings.TrimSpace(fileID) == "" {
		return File{}, fmt.Errorf("%w: empty file id", ErrDrive)
	}
	fileURL := c.cfg.BaseURL + "/files/" + url.PathEscape(fileID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL+"?fields=id,name,mimeType", nil)
	if err != nil {
		return File{}, fmt.Errorf("%w: build metadata request: %w", ErrDrive, err)
	}
	var meta File
	if err := c.doJSON(req, &meta); err != nil {
		return File{}, err
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, fileURL+"?alt=media", nil)
	if err != nil {
		return File{}, fmt.Errorf("%w: build media request: %w", ErrDrive, err)
	}
	raw, err := c.do(req)
	if err != nil {
		return File{}, err
	}
	if meta.ID == "" {
		meta.ID = fileID
	}
	if strings.HasPrefix(meta.MimeType, "text/") {
		meta.Content = string(raw)
	} else {
		meta.Content = "data:" + meta.MimeType + ";base64," + base64.StdEncoding.EncodeToString(raw)
	}
	return meta, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrDrive, err)
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDrive, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDrive, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrDrive, resp.StatusCode)
	}
	return raw, nil
}

func multipartBody(name string, content []byte, mimeType string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	meta, err := json.Marshal(map[string]string{"name": name, "mimeType": mimeType})
	if err != nil {
		return nil, "", fmt.Errorf("marshal metadata: %w", err)
	}
	part, err := w.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return nil, "", fmt.Errorf("create metadata part: %w", err)
	}
	if _, err := part.Write(meta); err != nil {
		return nil, "", fmt.Errorf("write metadata part: %w", err)
	}
	part, err = w.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return nil, "", fmt.Errorf("create media part: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, "", fmt.Errorf("write media part: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, "multipart/related; boundary=" + w.Boundary(), nil
}
