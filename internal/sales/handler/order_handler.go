package handler

import (
	"context"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
	"github.com/bitfantasy/nimo-sales/internal/sales/service"
	"github.com/gin-gonic/gin"
)

type SalesOrderHandler struct {
	svc      *service.OrderService
	sessions *service.SessionStore
}

func NewSalesOrderHandler(svc *service.OrderService, sessions *service.SessionStore) *SalesOrderHandler {
	return &SalesOrderHandler{svc: svc, sessions: sessions}
}

// List GET /sales/orders
// 表格协议直接返回 {data, success, total}，不包 envelope
func (h *SalesOrderHandler) List(c *gin.Context) {
	sess := tableSession(c, h.sessions)
	if view := c.Query("view"); view != "" {
		if _, err := sess.SetViewMode(view); err != nil {
			Fail(c, err)
			return
		}
	}
	result, err := sess.Request(backendContext(c), service.TableQuery{
		Current:      queryInt(c, "current", 1),
		PageSize:     queryInt(c, "pageSize", 0),
		SortField:    c.Query("sort_field"),
		SortOrder:    c.Query("sort_order"),
		Status:       c.Query("status"),
		CustomerName: c.Query("customer_name"),
	})
	if err != nil {
		Fail(c, err)
		return
	}
	c.JSON(200, result)
}

type setViewInput struct {
	Mode string `json:"mode" binding:"required"`
}

// SetView PUT /sales/view
// 有缓存时直接返回重新投影的行，否则提示前端重新拉取
func (h *SalesOrderHandler) SetView(c *gin.Context) {
	var input setViewInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	sess := tableSession(c, h.sessions)
	mode, err := sess.SetViewMode(input.Mode)
	if err != nil {
		Fail(c, err)
		return
	}
	if result, ok := sess.Reproject(); ok {
		Success(c, result)
		return
	}
	Success(c, gin.H{"mode": mode, "refetch": true})
}

// Get GET /sales/orders/:id 打开详情
func (h *SalesOrderHandler) Get(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	drawer, err := h.svc.Detail(backendContext(c), tableSession(c, h.sessions), id, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, drawer)
}

// CloseDetail DELETE /sales/orders/:id/detail
func (h *SalesOrderHandler) CloseDetail(c *gin.Context) {
	tableSession(c, h.sessions).CloseDrawer()
	Success(c, nil)
}

// Create POST /sales/orders
func (h *SalesOrderHandler) Create(c *gin.Context) {
	var input service.OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.Create(backendContext(c), &input, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Created(c, order)
}

// Update PUT /sales/orders/:id
func (h *SalesOrderHandler) Update(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var input service.OrderInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.Update(backendContext(c), tableSession(c, h.sessions), id, &input, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// Delete DELETE /sales/orders/:id
func (h *SalesOrderHandler) Delete(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(backendContext(c), tableSession(c, h.sessions), id, GetUserID(c)); err != nil {
		Fail(c, err)
		return
	}
	Success(c, nil)
}

type bulkDeleteInput struct {
	RowKeys []string `json:"row_keys"`
}

// BulkDelete POST /sales/orders/bulk-delete
// 部分成功返回 200 并带失败明细；全部失败返回错误码，同样带明细
func (h *SalesOrderHandler) BulkDelete(c *gin.Context) {
	var input bulkDeleteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	out, err := h.svc.BulkDelete(backendContext(c), tableSession(c, h.sessions), input.RowKeys, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	if out.Kind == service.OutcomeFailure {
		ErrorWithData(c, CodeBulkFailed, out.Message, out)
		return
	}
	Success(c, out)
}

type transitionFunc func(ctx context.Context, sess *service.TableSession, id int64, userID string) (*entity.SalesOrder, error)

func (h *SalesOrderHandler) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseOrderID(c)
		if !ok {
			return
		}
		order, err := fn(backendContext(c), tableSession(c, h.sessions), id, GetUserID(c))
		if err != nil {
			Fail(c, err)
			return
		}
		Success(c, order)
	}
}

// Submit POST /sales/orders/:id/submit
func (h *SalesOrderHandler) Submit(c *gin.Context) { h.transition(h.svc.Submit)(c) }

// Approve POST /sales/orders/:id/approve
func (h *SalesOrderHandler) Approve(c *gin.Context) { h.transition(h.svc.Approve)(c) }

// Unapprove POST /sales/orders/:id/unapprove
func (h *SalesOrderHandler) Unapprove(c *gin.Context) { h.transition(h.svc.Unapprove)(c) }

// Withdraw POST /sales/orders/:id/withdraw
func (h *SalesOrderHandler) Withdraw(c *gin.Context) { h.transition(h.svc.Withdraw)(c) }

// Confirm POST /sales/orders/:id/confirm
func (h *SalesOrderHandler) Confirm(c *gin.Context) { h.transition(h.svc.Confirm)(c) }

type rejectInput struct {
	Reason string `json:"reason"`
}

// Reject POST /sales/orders/:id/reject
func (h *SalesOrderHandler) Reject(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		return
	}
	var input rejectInput
	if err := c.ShouldBindJSON(&input); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	order, err := h.svc.Reject(backendContext(c), tableSession(c, h.sessions), id, input.Reason, GetUserID(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Success(c, order)
}

// Lifecycle GET /sales/lifecycle?status=&review_status=
func (h *SalesOrderHandler) Lifecycle(c *gin.Context) {
	lc := lifecycle.Classify(c.Query("status"), c.Query("review_status"))
	Success(c, gin.H{
		"lifecycle": lc,
		"actions":   lc.Actions(),
	})
}
