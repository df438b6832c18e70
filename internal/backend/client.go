package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"glancesync/internal/logger"
	"glancesync/pkg/model"
	"glancesync/pkg/traffic"
)

const (
	pathTraffic          = "/api/traffic"
	pathStatus           = "/api/status"
	pathConfig           = "/api/config"
	pathExecute          = "/api/request/execute"
	pathContinueRequest  = "/api/intercept/continue/"
	pathContinueResponse = "/api/intercept/response/continue/"
	pathAbort            = "/api/intercept/abort/"

	maxErrorBody = 4 << 10
)

// HTTPError 后端返回非 2xx 状态
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client 后端 REST 接口客户端
type Client struct {
	baseURL    string
	streamPath string
	http       *http.Client
	log        logger.Logger
}

// Config 客户端配置
type Config struct {
	BaseURL    string
	StreamPath string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     logger.Logger
}

// New 创建后端客户端
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	streamPath := cfg.StreamPath
	if streamPath == "" {
		streamPath = "/ws/traffic"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		streamPath: streamPath,
		http:       hc,
		log:        l,
	}
}

// Traffic 查询一页历史记录，Entries 为新到旧
func (c *Client) Traffic(ctx context.Context, page, pageSize int) (*model.TrafficPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))

	var out model.TrafficPage
	if err := c.do(ctx, http.MethodGet, pathTraffic+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearTraffic 清空后端历史
func (c *Client) ClearTraffic(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, pathTraffic, nil, nil)
}

// ContinueRequest 以编辑后的内容恢复请求阶段的拦截
func (c *Client) ContinueRequest(ctx context.Context, id string, req traffic.Request) error {
	return c.do(ctx, http.MethodPost, pathContinueRequest+url.PathEscape(id), req, nil)
}

// ContinueResponse 以编辑后的内容恢复响应阶段的拦截
func (c *Client) ContinueResponse(ctx context.Context, id string, res traffic.Response) error {
	return c.do(ctx, http.MethodPost, pathContinueResponse+url.PathEscape(id), res, nil)
}

// Abort 丢弃被拦截的交换
func (c *Client) Abort(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, pathAbort+url.PathEscape(id), nil, nil)
}

// Execute 发起一个全新的请求
func (c *Client) Execute(ctx context.Context, req traffic.Request) (*traffic.Exchange, error) {
	var out traffic.Exchange
	if err := c.do(ctx, http.MethodPost, pathExecute, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status 查询后端状态
func (c *Client) Status(ctx context.Context) (*model.Status, error) {
	var out model.Status
	if err := c.do(ctx, http.MethodGet, pathStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Config 查询后端配置
func (c *Client) Config(ctx context.Context) (*model.BackendConfig, error) {
	var out model.BackendConfig
	if err := c.do(ctx, http.MethodGet, pathConfig, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL 推送通道地址
func (c *Client) StreamURL() (string, error) {
	return streamURL(c.baseURL, c.streamPath)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	l := logger.FromContext(ctx, c.log)
	l.Debug("后端请求完成", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errorFromResponse(method, path, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
