package service

import (
	"context"
	"fmt"

	"github.com/bitfantasy/nimo-sales/internal/sales/cache"
	"github.com/bitfantasy/nimo-sales/internal/sales/client"
	"github.com/bitfantasy/nimo-sales/internal/sales/projection"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 1000
)

// sortableFields 后端允许排序的字段
var sortableFields = map[string]bool{
	"order_code":     true,
	"customer_name":  true,
	"order_date":     true,
	"delivery_date":  true,
	"total_quantity": true,
	"total_amount":   true,
	"status":         true,
	"review_status":  true,
	"created_at":     true,
	"updated_at":     true,
}

// TableQuery 表格请求：分页、排序、筛选
type TableQuery struct {
	Current      int
	PageSize     int
	SortField    string
	SortOrder    string // ascend / descend
	Status       string
	CustomerName string
}

// Params 转为缓存 key 参数；视图模式不参与
func (q TableQuery) Params() cache.Params {
	current := q.Current
	if current < 1 {
		current = 1
	}
	size := q.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	p := cache.Params{
		Skip:         (current - 1) * size,
		Limit:        size,
		Status:       q.Status,
		CustomerName: q.CustomerName,
	}
	if sortableFields[q.SortField] {
		switch q.SortOrder {
		case "descend", "desc":
			p.OrderBy = "-" + q.SortField
		case "ascend", "asc", "":
			p.OrderBy = q.SortField
		}
	}
	return p
}

// TableResult 表格响应
type TableResult struct {
	Data            []projection.Row           `json:"data"`
	Success         bool                       `json:"success"`
	Total           int64                      `json:"total"`
	Mode            projection.Mode            `json:"mode"`
	RowKeyToOrderID map[string]int64           `json:"row_key_to_order_id"`
	Groups          []projection.CardGroup     `json:"groups,omitempty"`
	Timeline        []projection.TimelineRange `json:"timeline,omitempty"`
	Cached          bool                       `json:"cached"`
	Stale           bool                       `json:"stale,omitempty"`
}

// Request 命中缓存时只做本地投影；否则拉取并写入缓存
// 过期响应（之后又发起了请求或发生了变更）不写缓存
func (s *TableSession) Request(ctx context.Context, q TableQuery) (*TableResult, error) {
	params := q.Params()
	key := params.Key()

	if e, ok := s.cache.Serve(key); ok {
		return s.present(e, true, true), nil
	}

	ticket := s.cache.Begin(key)
	res, err := s.api.ListSalesOrders(ctx, client.ListParams{
		Skip:         params.Skip,
		Limit:        params.Limit,
		Status:       params.Status,
		CustomerName: params.CustomerName,
		OrderBy:      params.OrderBy,
		IncludeItems: true,
	})
	if err != nil {
		return nil, fmt.Errorf("加载销售订单失败: %w", err)
	}

	entry := &cache.Entry{Orders: res.Data, Total: res.Total}
	if !s.cache.Commit(ticket, entry) {
		s.logger.Debug("stale list response discarded", zap.String("params", key))
		result := s.present(entry, false, false)
		result.Stale = true
		return result, nil
	}
	return s.present(entry, false, true), nil
}

// present 按响应时刻的视图模式投影
func (s *TableSession) present(e *cache.Entry, cached, current bool) *TableResult {
	mode := s.ViewMode()
	proj := projection.Project(e.Orders, mode)
	if current {
		s.mu.Lock()
		s.last = proj
		s.mu.Unlock()
	}
	return &TableResult{
		Data:            proj.Rows,
		Success:         true,
		Total:           e.Total,
		Mode:            proj.Mode,
		RowKeyToOrderID: proj.RowKeyToOrderID,
		Groups:          proj.Groups,
		Timeline:        proj.Timeline,
		Cached:          cached,
	}
}

// SetViewMode 同步切换视图模式
func (s *TableSession) SetViewMode(raw string) (projection.Mode, error) {
	mode, ok := projection.ParseMode(raw)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidViewMode, raw)
	}
	s.mode.Store(mode)
	return mode, nil
}

// Reproject 用缓存的数据按当前模式重新投影；无缓存时返回 false，需要重新拉取
func (s *TableSession) Reproject() (*TableResult, bool) {
	e, ok := s.cache.Peek()
	if !ok {
		return nil, false
	}
	return s.present(e, true, true), true
}
