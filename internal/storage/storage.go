// Package storage is the client for the external blob store that
// holds uploaded images and handwriting submissions.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"
)

// MaxUploadBytes bounds a single image upload.
const MaxUploadBytes = 5 << 20

// allowedExtensions is the image whitelist; blockedExtensions rejects
// executable payloads regardless of the whitelist.
var (
	allowedExtensions = map[string]bool{
		".jpg": true, ".jpeg": true, ".png": true,
		".gif": true, ".bmp": true, ".webp": true,
	}
	blockedExtensions = map[string]bool{
		".exe": true, ".sh": true, ".bat": true, ".cmd": true,
		".com": true, ".scr": true, ".ps1": true, ".msi": true,
		".php": true, ".js": true, ".jar": true, ".py": true,
	}
)

// Limits describes the upload policy, served verbatim on the limits
// endpoint.
type Limits struct {
	MaxBytes          int64    `json:"max_bytes"`
	AllowedExtensions []string `json:"allowed_extensions"`
	BlockedExtensions []string `json:"blocked_extensions"`
}

// UploadResult is the blob store's receipt for a stored file.
type UploadResult struct {
	FileID      string `json:"file_id"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// FileInfo describes a stored file.
type FileInfo struct {
	FileID      string `json:"file_id"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	CreatedAt   int64  `json:"created_at"`
}

// ValidateUpload applies the extension and size policy.
func ValidateUpload(filename string, size int64) error {
	ext := strings.ToLower(path.Ext(filename))
	if blockedExtensions[ext] {
		return fmt.Errorf("extension %q is not allowed", ext)
	}
	if !allowedExtensions[ext] {
		return fmt.Errorf("extension %q is not an accepted image type", ext)
	}
	if size > MaxUploadBytes {
		return fmt.Errorf("file of %d bytes exceeds the %d byte limit", size, MaxUploadBytes)
	}
	return nil
}

// CurrentLimits returns the upload policy in a serializable form.
func CurrentLimits() Limits {
	l := Limits{MaxBytes: MaxUploadBytes}
	for ext := range allowedExtensions {
		l.AllowedExtensions = append(l.AllowedExtensions, ext)
	}
	for ext := range blockedExtensions {
		l.BlockedExtensions = append(l.BlockedExtensions, ext)
	}
	return l
}

// Client talks to the blob store over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for the blob store at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// SubmitURL returns the endpoint writing questions should point their
// handwriting submissions at.
func (c *Client) SubmitURL() string {
	return c.baseURL + "/files/upload"
}

// UploadImage stores one image and returns the blob store's receipt.
func (c *Client) UploadImage(ctx context.Context, data []byte, filename string) (*UploadResult, error) {
	if err := ValidateUpload(filename, int64(len(data))); err != nil {
		return nil, err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write upload body: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.SubmitURL(), &body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var result UploadResult
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Info fetches metadata for a stored file.
func (c *Client) Info(ctx context.Context, fileID string) (*FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files/info/"+fileID, nil)
	if err != nil {
		return nil, fmt.Errorf("build info request: %w", err)
	}
	var info FileInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Delete removes a stored file.
func (c *Client) Delete(ctx context.Context, fileID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/files/"+fileID, nil)
	if err != nil {
		return fmt.Errorf("build delete request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("blob store: %s returned %d: %s", req.URL.Path, resp.StatusCode, snippet)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("blob store: decode response: %w", err)
	}
	return nil
}
