package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/bitfantasy/nimo-sales/internal/middleware"
	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/service"
	"github.com/bitfantasy/nimo-sales/internal/sales/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers 处理器集合
type Handlers struct {
	Order *SalesOrderHandler
	Push  *PushHandler
	SSE   *SSEHandler
}

// NewHandlers 创建处理器集合；logs 为空时不提供下推日志查询
func NewHandlers(svc *service.Services, hub *sse.Hub, logs PushLogReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		Order: NewSalesOrderHandler(svc.Order, svc.Sessions),
		Push:  NewPushHandler(svc.Push, svc.Sessions, logs),
		SSE:   NewSSEHandler(hub, logger),
	}
}

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination 分页信息
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// 业务错误码
const (
	CodeValidation    = 40001
	CodeNoPreview     = 40002
	CodeInvalidView   = 40003
	CodeNotFound      = 40400
	CodePushDisabled  = 40901
	CodePushInFlight  = 40902
	CodeBulkFailed    = 40903
	CodeBackendFailed = 50201
)

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Created 创建成功响应
func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// Error 错误响应
func Error(c *gin.Context, code int, message string) {
	ErrorWithData(c, code, message, nil)
}

// ErrorWithData 错误响应，附带结果（如批量删除明细）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// BadRequest 参数错误响应
func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

// NotFound 资源不存在响应
func NotFound(c *gin.Context, message string) {
	Error(c, CodeNotFound, message)
}

// InternalError 服务器错误响应
func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// Fail 按错误类型映射响应码
func Fail(c *gin.Context, err error) {
	var ve *service.ValidationError
	var apiErr *client.APIError
	switch {
	case errors.As(err, &ve):
		ErrorWithData(c, CodeValidation, ve.Message, gin.H{"fields": ve.Fields})
	case errors.Is(err, service.ErrValidation):
		Error(c, CodeValidation, err.Error())
	case errors.Is(err, service.ErrNoPendingPreview):
		Error(c, CodeNoPreview, err.Error())
	case errors.Is(err, service.ErrInvalidViewMode):
		Error(c, CodeInvalidView, err.Error())
	case errors.Is(err, service.ErrPushUnavailable):
		Error(c, CodePushDisabled, err.Error())
	case errors.Is(err, service.ErrPushInFlight):
		Error(c, CodePushInFlight, err.Error())
	case errors.Is(err, client.ErrNotFound):
		NotFound(c, err.Error())
	case errors.As(err, &apiErr), errors.Is(err, service.ErrCommit), errors.Is(err, service.ErrPreview):
		Error(c, CodeBackendFailed, err.Error())
	default:
		InternalError(c, err.Error())
	}
}

// GetUserID 从上下文获取用户ID
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// backendContext 请求 context 附带用户 token 与租户，转发给后端
func backendContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if token := c.GetString("token"); token != "" {
		ctx = client.WithToken(ctx, token)
	}
	if tenant := c.GetString("tenant_id"); tenant != "" {
		ctx = client.WithTenant(ctx, tenant)
	}
	return ctx
}

// tableSession 按用户与 X-Table-Session 取表格会话
func tableSession(c *gin.Context, sessions *service.SessionStore) *service.TableSession {
	return sessions.Get(GetUserID(c), c.GetHeader(middleware.TableSessionHeader))
}

func parseOrderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		BadRequest(c, "无效的订单ID")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
