// Package ocr is a thin client for the OCR HTTP service used to read
// text out of scanned images and image-only PDFs.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the OCR service request body.
type Request struct {
	RequestID string  `json:"request_id"`
	FileData  []byte  `json:"file_data"`
	FileName  string  `json:"file_name,omitempty"`
	Options   Options `json:"options,omitempty"`
}

// Options tunes recognition.
type Options struct {
	Languages []string `json:"languages,omitempty"`
}

// Response is the OCR service response body.
type Response struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Error      string  `json:"error,omitempty"`
}

// Client calls the OCR service over HTTP.
type Client struct {
	baseURL   string
	languages []string
	client    *http.Client
}

// NewClient returns a Client for the service at baseURL. Recognition
// runs for the given languages; nil means the service default.
func NewClient(baseURL string, languages []string) *Client {
	return &Client{
		baseURL:   baseURL,
		languages: languages,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

// Recognize sends data to the OCR service and returns the recognized
// text. An empty result is not an error; callers decide what an empty
// page means.
func (c *Client) Recognize(ctx context.Context, requestID, fileName string, data []byte) (string, error) {
	body, err := json.Marshal(Request{
		RequestID: requestID,
		FileData:  data,
		FileName:  fileName,
		Options:   Options{Languages: c.languages},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/ocr", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr error %d: %s", resp.StatusCode, string(respBody))
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decoding ocr response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ocr service error: %s", out.Error)
	}
	return out.Text, nil
}
