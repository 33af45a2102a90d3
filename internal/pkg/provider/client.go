package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTemperature = 0.7
	DefaultTopP        = 1.0
	DefaultMaxTokens   = 1024

	maxBodyBytes = 4 << 20
)

var ErrNoProviderURL = errors.New("No AI Provider URL configured")

// Request 一次 provider 调用
type Request struct {
	URL     string
	APIKey  string
	Method  string
	Headers map[string]string
	Payload any
	Timeout time.Duration
}

// Response 调用结果。HTTP 层面的错误（4xx/5xx）通过 OK=false 表达，不返回 error
type Response struct {
	OK         bool
	Status     int
	StatusText string
	// Body 可直接落库的响应体：合法 JSON 原样保留，否则包装为 {"raw": "..."}
	Body json.RawMessage
	// Text 原始响应文本
	Text string
}

type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient}
}

// Invoke 发起调用。只有网络层错误（DNS、超时、连接重置）才返回 error
func (c *Client) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrNoProviderURL
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var body io.Reader
	if req.Payload != nil {
		data, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if req.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, wrapTransportError(ctx, req.Timeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, wrapTransportError(ctx, req.Timeout, err)
	}

	return &Response{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Body:       payloadOf(raw),
		Text:       string(raw),
	}, nil
}

func wrapTransportError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("request timed out after %dms: %w", timeout.Milliseconds(), context.DeadlineExceeded)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("request aborted: %w", context.Canceled)
	}
	return err
}

func payloadOf(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return wrapped
}
