package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

const (
	// DefaultTimeout matches the backend client default for ordinary requests
	DefaultTimeout = 10 * time.Second
	// DefaultRecognizeTimeout leaves room for model latency
	DefaultRecognizeTimeout = 90 * time.Second

	maxResponseSize = 10 << 20
)

// envelope is the response wrapper used by every backend endpoint.
// Code 0 means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the smart-ledger backend
type Client struct {
	baseURL   string
	token     string
	http      *http.Client
	recognize *http.Client
	logger    *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithToken sets the bearer token sent with every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout sets the timeout for ordinary requests
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRecognizeTimeout sets the timeout for recognition uploads
func WithRecognizeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.recognize.Timeout = d
		}
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client for the API rooted at baseURL (for example
// "https://ledger.example.com/v1").
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("ledger base url is required")
	}
	c := &Client{
		baseURL:   baseURL,
		http:      &http.Client{Timeout: DefaultTimeout},
		recognize: &http.Client{Timeout: DefaultRecognizeTimeout},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// doJSON sends body (if any) as JSON and decodes the envelope data into out.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(c.http, req, out)
}

// doUpload posts a single file as multipart field "image".
func (c *Client) doUpload(ctx context.Context, path string, upload Upload, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	filename := upload.Filename
	if filename == "" {
		filename = "receipt"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="image"; filename="%s"`, quoteEscaper.Replace(filename)))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("creating multipart part: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return fmt.Errorf("writing multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("closing multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(c.recognize, req, out)
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func (c *Client) do(hc *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug("ledger api call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		if decodeErr == nil {
			apiErr.Code = env.Code
			if env.Message != "" {
				apiErr.Message = env.Message
			}
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding response envelope: %w", decodeErr)
	}
	if env.Code != 0 {
		return &APIError{StatusCode: resp.StatusCode, Code: env.Code, Message: env.Message}
	}

	if out == nil {
		return nil
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("empty response data from %s", req.URL.Path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}
