package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
)

// SalesOrderAPI 编排层依赖的后端接口
type SalesOrderAPI interface {
	ListSalesOrders(ctx context.Context, params ListParams) (*ListResult, error)
	GetSalesOrder(ctx context.Context, id int64, includeItems, includeDuration bool) (*entity.SalesOrder, error)
	CreateSalesOrder(ctx context.Context, order *entity.SalesOrder) (*entity.SalesOrder, error)
	UpdateSalesOrder(ctx context.Context, id int64, order *entity.SalesOrder) (*entity.SalesOrder, error)
	DeleteSalesOrder(ctx context.Context, id int64) error
	BulkDeleteSalesOrders(ctx context.Context, ids []int64) (*entity.BulkDeleteResult, error)

	SubmitSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error)
	ApproveSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error)
	RejectSalesOrder(ctx context.Context, id int64, reason string) (*entity.SalesOrder, error)
	UnapproveSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error)
	WithdrawSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error)
	ConfirmSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error)

	PreviewPush(ctx context.Context, id int64, target entity.PushTarget) (*entity.PushPreview, error)
	Push(ctx context.Context, id int64, target entity.PushTarget) (*entity.PushResult, error)
}

var _ SalesOrderAPI = (*Client)(nil)

// ListParams 列表查询参数
type ListParams struct {
	Skip         int
	Limit        int
	Status       string
	ReviewStatus string
	CustomerName string
	OrderBy      string
	IncludeItems bool
}

func (p ListParams) values() url.Values {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(p.Skip))
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	if p.ReviewStatus != "" {
		q.Set("review_status", p.ReviewStatus)
	}
	if p.CustomerName != "" {
		q.Set("customer_name", p.CustomerName)
	}
	if p.OrderBy != "" {
		q.Set("order_by", p.OrderBy)
	}
	if p.IncludeItems {
		q.Set("include_items", "true")
	}
	return q
}

// ListResult 列表响应
type ListResult struct {
	Data    []entity.SalesOrder `json:"data"`
	Total   int64               `json:"total"`
	Success bool                `json:"success"`
}

const salesOrdersPath = "/sales-orders"

func orderPath(id int64, suffix string) string {
	return fmt.Sprintf("%s/%d%s", salesOrdersPath, id, suffix)
}

// pushPaths 下推目标对应的后端路径
var pushPaths = map[entity.PushTarget]string{
	entity.TargetComputation:         "/push-to-computation",
	entity.TargetProductionPlan:      "/push-to-production-plan",
	entity.TargetWorkOrder:           "/push-to-work-order",
	entity.TargetShipmentNotice:      "/push-to-shipment-notice",
	entity.TargetInvoice:             "/push-to-invoice",
	entity.TargetWithdrawComputation: "/withdraw-from-computation",
}

func (c *Client) ListSalesOrders(ctx context.Context, params ListParams) (*ListResult, error) {
	var result ListResult
	if err := c.doRequest(ctx, "GET", salesOrdersPath, params.values(), nil, &result); err != nil {
		return nil, fmt.Errorf("获取销售订单列表失败: %w", err)
	}
	return &result, nil
}

func (c *Client) GetSalesOrder(ctx context.Context, id int64, includeItems, includeDuration bool) (*entity.SalesOrder, error) {
	q := url.Values{}
	q.Set("include_items", strconv.FormatBool(includeItems))
	q.Set("include_duration", strconv.FormatBool(includeDuration))
	var order entity.SalesOrder
	if err := c.doRequest(ctx, "GET", orderPath(id, ""), q, nil, &order); err != nil {
		return nil, fmt.Errorf("获取销售订单详情失败: %w", err)
	}
	return &order, nil
}

func (c *Client) CreateSalesOrder(ctx context.Context, order *entity.SalesOrder) (*entity.SalesOrder, error) {
	var created entity.SalesOrder
	if err := c.doRequest(ctx, "POST", salesOrdersPath, nil, order, &created); err != nil {
		return nil, fmt.Errorf("创建销售订单失败: %w", err)
	}
	return &created, nil
}

func (c *Client) UpdateSalesOrder(ctx context.Context, id int64, order *entity.SalesOrder) (*entity.SalesOrder, error) {
	var updated entity.SalesOrder
	if err := c.doRequest(ctx, "PUT", orderPath(id, ""), nil, order, &updated); err != nil {
		return nil, fmt.Errorf("更新销售订单失败: %w", err)
	}
	return &updated, nil
}

func (c *Client) DeleteSalesOrder(ctx context.Context, id int64) error {
	if err := c.doRequest(ctx, "DELETE", orderPath(id, ""), nil, nil, nil); err != nil {
		return fmt.Errorf("删除销售订单失败: %w", err)
	}
	return nil
}

func (c *Client) BulkDeleteSalesOrders(ctx context.Context, ids []int64) (*entity.BulkDeleteResult, error) {
	var result entity.BulkDeleteResult
	if err := c.doRequest(ctx, "POST", salesOrdersPath+"/batch-delete", nil, ids, &result); err != nil {
		return nil, fmt.Errorf("批量删除销售订单失败: %w", err)
	}
	return &result, nil
}

// transition 审核流转类接口统一返回更新后的订单
func (c *Client) transition(ctx context.Context, id int64, action, label string, query url.Values) (*entity.SalesOrder, error) {
	var order entity.SalesOrder
	if err := c.doRequest(ctx, "POST", orderPath(id, "/"+action), query, nil, &order); err != nil {
		return nil, fmt.Errorf("%s失败: %w", label, err)
	}
	return &order, nil
}

func (c *Client) SubmitSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	return c.transition(ctx, id, "submit", "提交销售订单", nil)
}

func (c *Client) ApproveSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	return c.transition(ctx, id, "approve", "审核销售订单", nil)
}

// RejectSalesOrder 驳回原因走 query 参数
func (c *Client) RejectSalesOrder(ctx context.Context, id int64, reason string) (*entity.SalesOrder, error) {
	q := url.Values{}
	q.Set("rejection_reason", reason)
	return c.transition(ctx, id, "reject", "驳回销售订单", q)
}

func (c *Client) UnapproveSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	return c.transition(ctx, id, "unapprove", "反审核销售订单", nil)
}

func (c *Client) WithdrawSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	return c.transition(ctx, id, "withdraw", "撤回销售订单", nil)
}

func (c *Client) ConfirmSalesOrder(ctx context.Context, id int64) (*entity.SalesOrder, error) {
	return c.transition(ctx, id, "confirm", "确认销售订单", nil)
}

// PreviewPush 获取下推预览，仅需求计算、生产计划、工单支持
func (c *Client) PreviewPush(ctx context.Context, id int64, target entity.PushTarget) (*entity.PushPreview, error) {
	path, ok := pushPaths[target]
	if !ok || !target.HasPreview() {
		return nil, fmt.Errorf("下推目标 %s 不支持预览", target)
	}
	var preview entity.PushPreview
	if err := c.doRequest(ctx, "GET", orderPath(id, path+"/preview"), nil, nil, &preview); err != nil {
		return nil, fmt.Errorf("%s预览失败: %w", target.Label(), err)
	}
	return &preview, nil
}

// Push 执行下推；撤回需求计算同样走这里
func (c *Client) Push(ctx context.Context, id int64, target entity.PushTarget) (*entity.PushResult, error) {
	path, ok := pushPaths[target]
	if !ok {
		return nil, fmt.Errorf("未知下推目标: %s", target)
	}
	var raw json.RawMessage
	if err := c.doRequest(ctx, "POST", orderPath(id, path), nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("%s失败: %w", target.Label(), err)
	}
	return decodePushResult(raw), nil
}

// targetCodeKeys 各下推接口返回的下游单据编号字段
var targetCodeKeys = []string{
	"computation_code",
	"plan_code",
	"work_order_code",
	"notice_code",
	"invoice_code",
	"code",
}

// decodePushResult 下推接口返回结构不统一；2xx 且未显式 success=false 即视为成功
func decodePushResult(raw json.RawMessage) *entity.PushResult {
	result := &entity.PushResult{Success: true, Raw: raw}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return result
	}
	if v, ok := m["success"].(bool); ok {
		result.Success = v
	}
	if v, ok := m["message"].(string); ok {
		result.Message = v
	}
	for _, k := range targetCodeKeys {
		if v, ok := m[k].(string); ok && v != "" {
			result.TargetCode = v
			break
		}
	}
	return result
}
