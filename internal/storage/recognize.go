package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RecognizerClient talks to the external handwriting recognizer.
// Transient failures are retried with exponential backoff; 4xx
// responses are not.
type RecognizerClient struct {
	baseURL       string
	http          *http.Client
	retries       uint64
	retryInterval time.Duration
}

// NewRecognizer builds a client for the recognizer at baseURL.
func NewRecognizer(baseURL string) *RecognizerClient {
	return &RecognizerClient{
		baseURL:       strings.TrimRight(baseURL, "/"),
		http:          &http.Client{Timeout: 30 * time.Second},
		retries:       3,
		retryInterval: 500 * time.Millisecond,
	}
}

type recognizeRequest struct {
	Image  string `json:"image"`
	Target string `json:"target,omitempty"`
}

// HandwriteResult is the recognizer's verdict on one handwriting
// submission. The wrong-image URL is only set for incorrect answers
// the recognizer archived.
type HandwriteResult struct {
	IsCorrect     bool   `json:"is_correct"`
	WrongImageURL string `json:"wrong_image_url,omitempty"`
}

// ScanItem is one character lifted off a scanned worksheet, with the
// cropped image the recognizer stored for it.
type ScanItem struct {
	Char          string `json:"char"`
	WrongImageURL string `json:"wrong_image_url,omitempty"`
}

// ScanResult splits a scan into resolved characters and the marks the
// recognizer could not read.
type ScanResult struct {
	Items    []ScanItem `json:"items"`
	NotFound []ScanItem `json:"not_found"`
}

// RecognizeHandwriting judges whether the image shows the target
// character.
func (c *RecognizerClient) RecognizeHandwriting(ctx context.Context, image []byte, target string) (*HandwriteResult, error) {
	var out HandwriteResult
	err := c.post(ctx, "/recognize", recognizeRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		Target: target,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanWrongWords extracts the characters marked wrong on a
// photographed worksheet.
func (c *RecognizerClient) ScanWrongWords(ctx context.Context, image []byte) (*ScanResult, error) {
	var out ScanResult
	err := c.post(ctx, "/scan", recognizeRequest{
		Image: base64.StdEncoding.EncodeToString(image),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RecognizerClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("recognizer: encode request: %w", err)
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("recognizer: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("recognizer: %w", err)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode >= 500 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("recognizer: %s returned %d: %s", path, resp.StatusCode, snippet)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("recognizer: %s returned %d: %s", path, resp.StatusCode, snippet))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("recognizer: decode response: %w", err))
		}
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, c.retries), ctx))
}
