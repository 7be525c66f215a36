package handler

import (
	"context"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/repository"
	"github.com/bitfantasy/nimo-sales/internal/sales/service"
	"github.com/gin-gonic/gin"
)

// PushLogReader 下推日志查询
type PushLogReader interface {
	List(ctx context.Context, q repository.PushLogQuery) ([]entity.PushLog, int64, error)
}

type PushHandler struct {
	svc      *service.PushService
	sessions *service.SessionStore
	logs     PushLogReader
}

func NewPushHandler(svc *service.PushService, sessions *service.SessionStore, logs PushLogReader) *PushHandler {
	return &PushHandler{svc: svc, sessions: sessions, logs: logs}
}

func parseTarget(c *gin.Context) (entity.PushTarget, bool) {
	target, ok := entity.ParsePushTarget(c.Param("target"))
	if !ok {
		BadRequest(c, "未知下推目标: "+c.Param("target"))
	}
	return target, ok
}

// Options GET /sales/orders/:id/push
func (h *PushHandler) Options(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	opts, err := h.svc.Options(backendContext(c), tableSession(c, h.sessions), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{"items": opts})
}

// Preview POST /sales/orders/:id/push/:target/preview
func (h *PushHandler) Preview(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	target, ok := parseTarget(c)
	if !ok {
		return
	}
	preview, err := h.svc.Preview(backendContext(c), tableSession(c, h.sessions), id, target, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, gin.H{
		"target":        target,
		"label":         target.Label(),
		"needs_preview": target.HasPreview(),
		"preview":       preview,
	})
}

// Commit POST /sales/orders/:id/push/:target/commit
func (h *PushHandler) Commit(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	target, ok := parseTarget(c)
	if !ok {
		return
	}
	result, err := h.svc.Commit(backendContext(c), tableSession(c, h.sessions), id, target, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, result)
}

// Cancel POST /sales/orders/:id/push/:target/cancel
func (h *PushHandler) Cancel(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	target, ok := parseTarget(c)
	if !ok {
		return
	}
	h.svc.Cancel(tableSession(c, h.sessions), id, target)
	Success(c, nil)
}

// Logs GET /sales/push-logs?order_id=&target=&outcome=&page=&page_size=
func (h *PushHandler) Logs(c *gin.Context) {
	if h.logs == nil {
		Error(c, 50300, "未配置下推日志库")
		return
	}
	q := repository.PushLogQuery{
		OrderID:  int64(queryInt(c, "order_id", 0)),
		Target:   c.Query("target"),
		Outcome:  c.Query("outcome"),
		Page:     queryInt(c, "page", 1),
		PageSize: queryInt(c, "page_size", 20),
	}
	if q.PageSize < 1 || q.PageSize > 100 {
		q.PageSize = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	items, total, err := h.logs.List(c.Request.Context(), q)
	if err != nil {
		InternalError(c, "获取下推日志失败: "+err.Error())
		return
	}
	totalPages := int((total + int64(q.PageSize) - 1) / int64(q.PageSize))
	Success(c, gin.H{
		"items": items,
		"pagination": Pagination{
			Page:       q.Page,
			PageSize:   q.PageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}
