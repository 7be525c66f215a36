package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"go.uber.org/zap"
)

// =============================================================================
// Client 销售订单后端 REST 客户端
// 用户令牌与租户随 context 透传，后端错误统一转为 *APIError
// =============================================================================

// ErrNotFound 后端返回 404
var ErrNotFound = errors.New("资源不存在")

// APIError 后端非 2xx 响应
type APIError struct {
	StatusCode int
	Detail     string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("后端接口错误[%d]: %s (%s %s)", e.StatusCode, e.Detail, e.Method, e.Path)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

type ctxKey int

const (
	tokenKey ctxKey = iota
	tenantKey
)

// WithToken 把当前用户的 bearer token 放进 context，后端请求时转发
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// WithTenant 租户 ID
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// Client 后端客户端
type Client struct {
	baseURL      string
	tenantHeader string
	httpClient   *http.Client
	logger       *zap.Logger
}

// New 创建后端客户端
func New(cfg config.BackendConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.Trim(cfg.APIPrefix, "/"),
		tenantHeader: cfg.TenantHeader,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// doRequest 执行后端请求
// body 非 nil 时序列化为 JSON；result 非 nil 时反序列化响应体
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	if token, ok := ctx.Value(tokenKey).(string); ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if tenant, ok := ctx.Value(tenantKey).(string); ok && tenant != "" && c.tenantHeader != "" {
		req.Header.Set(c.tenantHeader, tenant)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(respBody, resp.Status),
			Method:     method,
			Path:       path,
		}
	}

	if result != nil && len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("解析响应体失败: %w", err)
		}
	}
	return nil
}

// errorDetail 取 {"detail": ...}；detail 不是字符串时原样返回
func errorDetail(body []byte, fallback string) string {
	var payload struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			return s
		}
		return fallback
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil {
			return s
		}
		return string(payload.Detail)
	}
	if payload.Message != "" {
		return payload.Message
	}
	return fallback
}
