package qrgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the hosted QR image service
const DefaultEndpoint = "https://universal-qr-backend.ai.dkcexportstna.in/api/v1.0/qr-m2m/create-qr-without-db-save/"

// MaxImageSize caps a single generated image
const MaxImageSize = 10 * 1024 * 1024

// ErrImageTooLarge is returned when the service sends more than the size cap
var ErrImageTooLarge = errors.New("image too large")

// Request is the body sent to the image service
type Request struct {
	Code        string `json:"code"`
	WithoutText bool   `json:"qr_without_text"`
	TextContent string `json:"text_content"`
}

// Image is the raw payload returned by the service
type Image struct {
	Data        []byte
	ContentType string
}

// Client calls the remote QR image service
type Client struct {
	endpoint string
	client   *http.Client
	maxSize  int64
}

// NewClient creates a new image service client
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		maxSize:  MaxImageSize,
	}
}

// Endpoint returns the configured service URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Generate requests one label image. Any non-2xx status or transport
// error is a failure; the error body is not interpreted.
func (c *Client) Generate(ctx context.Context, req Request) (Image, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Image{}, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Image{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Image{}, fmt.Errorf("image service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Image{}, fmt.Errorf("image service returned %d for code %s", resp.StatusCode, req.Code)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxSize+1))
	if err != nil {
		return Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > c.maxSize {
		return Image{}, fmt.Errorf("%w: code %s exceeds %d bytes", ErrImageTooLarge, req.Code, c.maxSize)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("image service returned an empty body for code %s", req.Code)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	return Image{Data: data, ContentType: contentType}, nil
}
