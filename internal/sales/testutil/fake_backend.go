package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/bitfantasy/nimo-sales/internal/config"
	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/gin-gonic/gin"
)

// FakeBackend in-memory sales order backend served over httptest
type FakeBackend struct {
	Server *httptest.Server

	mu     sync.Mutex
	orders map[int64]*entity.SalesOrder
	nextID int64
	calls  map[string]int

	// DeleteFailures 按订单 ID 注入删除失败原因
	DeleteFailures map[int64]string
	// PushFailures 按下推目标注入后端拒绝
	PushFailures map[entity.PushTarget]string
	// PreviewFailures 按下推目标注入预览失败
	PreviewFailures map[entity.PushTarget]string
	// Downstream 已生成下游单据的订单，不允许撤回需求计算
	Downstream map[int64]bool
	// BeforeList 列表请求处理前回调，用于模拟慢响应
	BeforeList func()

	LastAuthorization string
	LastTenant        string
}

// NewFakeBackend starts the fake server; call Close when done
func NewFakeBackend() *FakeBackend {
	f := &FakeBackend{
		orders:          make(map[int64]*entity.SalesOrder),
		calls:           make(map[string]int),
		DeleteFailures:  make(map[int64]string),
		PushFailures:    make(map[entity.PushTarget]string),
		PreviewFailures: make(map[entity.PushTarget]string),
		Downstream:      make(map[int64]bool),
	}

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(f.record)

	so := r.Group(APIPrefix + "/sales-orders")
	so.GET("", f.list)
	so.POST("", f.create)
	so.POST("/batch-delete", f.bulkDelete)
	so.GET("/:id", f.get)
	so.PUT("/:id", f.update)
	so.DELETE("/:id", f.delete)
	so.POST("/:id/submit", f.transition(entity.SOStatusPendingReview, entity.ReviewPending, "DRAFT", "REJECTED"))
	so.POST("/:id/approve", f.transition(entity.SOStatusAudited, entity.ReviewApproved, "PENDING_REVIEW"))
	so.POST("/:id/reject", f.transition(entity.SOStatusRejected, entity.ReviewRejected, "PENDING_REVIEW"))
	so.POST("/:id/unapprove", f.transition(entity.SOStatusPendingReview, entity.ReviewPending, "AUDITED"))
	so.POST("/:id/withdraw", f.transition(entity.SOStatusDraft, entity.ReviewPending, "PENDING_REVIEW"))
	so.POST("/:id/confirm", f.transition(entity.SOStatusConfirmed, entity.ReviewApproved, "AUDITED"))

	for target, path := range map[entity.PushTarget]string{
		entity.TargetComputation:    "push-to-computation",
		entity.TargetProductionPlan: "push-to-production-plan",
		entity.TargetWorkOrder:      "push-to-work-order",
	} {
		so.GET("/:id/"+path+"/preview", f.preview(target))
		so.POST("/:id/"+path, f.push(target))
	}
	so.POST("/:id/push-to-shipment-notice", f.push(entity.TargetShipmentNotice))
	so.POST("/:id/push-to-invoice", f.push(entity.TargetInvoice))
	so.POST("/:id/withdraw-from-computation", f.withdrawComputation)

	f.Server = httptest.NewServer(r)
	return f
}

func (f *FakeBackend) Close() {
	f.Server.Close()
}

// Config backend config pointing at the fake server
func (f *FakeBackend) Config() config.BackendConfig {
	return config.BackendConfig{
		BaseURL:      f.Server.URL,
		APIPrefix:    APIPrefix,
		TenantHeader: "X-Tenant-ID",
	}
}

// Seed stores an order as-is; returns its id
func (f *FakeBackend) Seed(o entity.SalesOrder) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o.ID == 0 {
		f.nextID++
		o.ID = f.nextID
	} else if o.ID > f.nextID {
		f.nextID = o.ID
	}
	if o.OrderCode == "" {
		o.OrderCode = fmt.Sprintf("SO-TEST-%03d", o.ID)
	}
	f.orders[o.ID] = &o
	return o.ID
}

// Order returns a copy of the stored order
func (f *FakeBackend) Order(id int64) (entity.SalesOrder, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return entity.SalesOrder{}, false
	}
	return *o, true
}

// Calls number of requests matching "METHOD /route", e.g. "POST /sales-orders/:id/submit"
func (f *FakeBackend) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls number of requests of any kind
func (f *FakeBackend) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, v := range f.calls {
		n += v
	}
	return n
}

func (f *FakeBackend) record(c *gin.Context) {
	route := strings.TrimPrefix(c.FullPath(), APIPrefix)
	f.mu.Lock()
	f.calls[c.Request.Method+" "+route]++
	f.LastAuthorization = c.GetHeader("Authorization")
	f.LastTenant = c.GetHeader("X-Tenant-ID")
	f.mu.Unlock()
	c.Next()
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}

func (f *FakeBackend) lookup(c *gin.Context) (*entity.SalesOrder, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid id")
		return nil, false
	}
	o, ok := f.orders[id]
	if !ok {
		detail(c, http.StatusNotFound, fmt.Sprintf("销售订单不存在: %d", id))
		return nil, false
	}
	return o, true
}

func (f *FakeBackend) list(c *gin.Context) {
	if f.BeforeList != nil {
		f.BeforeList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	status := c.Query("status")
	var all []entity.SalesOrder
	for _, o := range f.orders {
		if status != "" && o.Status != status {
			continue
		}
		cp := *o
		if c.Query("include_items") != "true" {
			cp.Items = nil
		}
		all = append(all, cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if c.Query("order_by") == "-id" || c.Query("order_by") == "-created_at" {
		sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	}

	total := len(all)
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if skip > total {
		skip = total
	}
	end := skip + limit
	if end > total {
		end = total
	}
	c.JSON(http.StatusOK, gin.H{"data": all[skip:end], "total": total, "success": true})
}

func (f *FakeBackend) get(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.lookup(c)
	if !ok {
		return
	}
	cp := *o
	if c.Query("include_items") == "false" {
		cp.Items = nil
	}
	c.JSON(http.StatusOK, cp)
}

func (f *FakeBackend) create(c *gin.Context) {
	var o entity.SalesOrder
	if err := c.ShouldBindJSON(&o); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.ID = f.nextID
	o.OrderCode = fmt.Sprintf("SO-TEST-%03d", o.ID)
	o.Status = entity.SOStatusDraft
	o.ReviewStatus = entity.ReviewPending
	f.orders[o.ID] = &o
	c.JSON(http.StatusOK, o)
}

func (f *FakeBackend) update(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.lookup(c)
	if !ok {
		return
	}
	var patch entity.SalesOrder
	if err := c.ShouldBindJSON(&patch); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	patch.ID = o.ID
	patch.OrderCode = o.OrderCode
	patch.Status = o.Status
	patch.ReviewStatus = o.ReviewStatus
	*o = patch
	c.JSON(http.StatusOK, o)
}

func (f *FakeBackend) deleteOne(id int64) string {
	if reason, ok := f.DeleteFailures[id]; ok {
		return reason
	}
	o, ok := f.orders[id]
	if !ok {
		return "销售订单不存在"
	}
	if o.Status != entity.SOStatusDraft && o.Status != entity.SOStatusPendingReview {
		return "只能删除草稿或待审核状态的销售订单"
	}
	delete(f.orders, id)
	return ""
}

func (f *FakeBackend) delete(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.lookup(c)
	if !ok {
		return
	}
	if reason := f.deleteOne(o.ID); reason != "" {
		detail(c, http.StatusBadRequest, reason)
		return
	}
	c.Status(http.StatusNoContent)
}

func (f *FakeBackend) bulkDelete(c *gin.Context) {
	var ids []int64
	if err := c.ShouldBindJSON(&ids); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	res := entity.BulkDeleteResult{FailedItems: []entity.BulkDeleteFault{}}
	for _, id := range ids {
		if reason := f.deleteOne(id); reason != "" {
			res.FailedCount++
			res.FailedItems = append(res.FailedItems, entity.BulkDeleteFault{ID: id, Reason: reason})
			continue
		}
		res.SuccessCount++
	}
	c.JSON(http.StatusOK, res)
}

func (f *FakeBackend) transition(status, review string, from ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o, ok := f.lookup(c)
		if !ok {
			return
		}
		allowed := false
		for _, s := range from {
			if o.Status == s {
				allowed = true
			}
		}
		if !allowed {
			detail(c, http.StatusBadRequest, fmt.Sprintf("当前状态 %s 不允许该操作", o.Status))
			return
		}
		if status == entity.SOStatusPendingReview && o.Status != entity.SOStatusAudited && len(o.Items) == 0 {
			detail(c, http.StatusBadRequest, "销售订单没有明细")
			return
		}
		o.Status = status
		o.ReviewStatus = review
		if reason := c.Query("rejection_reason"); reason != "" {
			o.ReviewRemarks = reason
		}
		c.JSON(http.StatusOK, o)
	}
}

func (f *FakeBackend) preview(target entity.PushTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o, ok := f.lookup(c)
		if !ok {
			return
		}
		if reason, ok := f.PreviewFailures[target]; ok {
			detail(c, http.StatusBadRequest, reason)
			return
		}
		p := entity.PushPreview{
			Summary: fmt.Sprintf("将为 %s 生成%s", o.OrderCode, target.Label()),
			Items:   []entity.PreviewItem{},
		}
		for _, it := range o.Items {
			p.Items = append(p.Items, entity.PreviewItem{
				MaterialCode: it.MaterialCode,
				MaterialName: it.MaterialName,
				Quantity:     it.RequiredQuantity,
				Unit:         it.MaterialUnit,
				Action:       "create",
			})
		}
		if target == entity.TargetProductionPlan {
			p.PlanNamePreview = "PP-" + o.OrderCode
		}
		c.JSON(http.StatusOK, p)
	}
}

func (f *FakeBackend) push(target entity.PushTarget) gin.HandlerFunc {
	return func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		o, ok := f.lookup(c)
		if !ok {
			return
		}
		if reason, ok := f.PushFailures[target]; ok {
			detail(c, http.StatusBadRequest, reason)
			return
		}
		switch target {
		case entity.TargetComputation:
			if o.PushedToComputation {
				detail(c, http.StatusBadRequest, "销售订单已下推需求计算")
				return
			}
			o.PushedToComputation = true
			o.ComputationCode = fmt.Sprintf("DC-%03d", o.ID)
			c.JSON(http.StatusOK, gin.H{"success": true, "message": "下推成功", "computation_code": o.ComputationCode})
		case entity.TargetProductionPlan:
			c.JSON(http.StatusOK, gin.H{"success": true, "plan_code": fmt.Sprintf("PP-%03d", o.ID)})
		case entity.TargetWorkOrder:
			c.JSON(http.StatusOK, gin.H{"success": true, "work_order_code": fmt.Sprintf("WO-%03d", o.ID)})
		case entity.TargetShipmentNotice:
			c.JSON(http.StatusOK, gin.H{"success": true, "notice_code": fmt.Sprintf("SN-%03d", o.ID)})
		case entity.TargetInvoice:
			c.JSON(http.StatusOK, gin.H{"success": true, "invoice_code": fmt.Sprintf("INV-%03d", o.ID)})
		}
	}
}

func (f *FakeBackend) withdrawComputation(c *gin.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.lookup(c)
	if !ok {
		return
	}
	if reason, ok := f.PushFailures[entity.TargetWithdrawComputation]; ok {
		detail(c, http.StatusBadRequest, reason)
		return
	}
	if !o.PushedToComputation {
		detail(c, http.StatusBadRequest, "销售订单未下推需求计算")
		return
	}
	if f.Downstream[o.ID] {
		detail(c, http.StatusBadRequest, "需求计算已生成下游单据，无法撤回")
		return
	}
	o.PushedToComputation = false
	o.ComputationCode = ""
	c.JSON(http.StatusOK, o)
}
