// Package projection turns one server response (orders with nested items)
// into the row shape the active table view needs. It holds no state: every
// view is served from the same cached payload by re-projecting it.
package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bitfantasy/nimo-sales/internal/sales/entity"
	"github.com/bitfantasy/nimo-sales/internal/sales/lifecycle"
)

// Mode 视图模式
type Mode string

const (
	ModeOrder    Mode = "order"
	ModeDetail   Mode = "detail"
	ModeCard     Mode = "card"
	ModeTimeline Mode = "timeline"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeOrder, ModeDetail, ModeCard, ModeTimeline:
		return Mode(s), true
	case "":
		return ModeOrder, true
	}
	return "", false
}

// PlaceholderMaterialCode 无明细订单的占位物料编码
const PlaceholderMaterialCode = "-"

// Row 表格行：订单视图下是 OrderRow，明细视图下是 FlatRow
type Row interface {
	RowKey() string
	OwnerOrderID() int64
	LifecycleStage() lifecycle.Lifecycle
}

// OrderRow 一单一行
type OrderRow struct {
	entity.SalesOrder
	Key       string              `json:"_rowKey"`
	Lifecycle lifecycle.Lifecycle `json:"_lifecycleStage"`
}

func (r *OrderRow) RowKey() string                      { return r.Key }
func (r *OrderRow) OwnerOrderID() int64                 { return r.ID }
func (r *OrderRow) LifecycleStage() lifecycle.Lifecycle { return r.Lifecycle }

// FlatRow 一个明细一行，附带冗余的订单头字段
type FlatRow struct {
	entity.SalesOrderItem

	OrderID             int64   `json:"order_id"`
	OrderCode           string  `json:"order_code"`
	OrderName           string  `json:"order_name,omitempty"`
	CustomerID          int64   `json:"customer_id"`
	CustomerName        string  `json:"customer_name"`
	OrderDate           string  `json:"order_date"`
	OrderDeliveryDate   string  `json:"order_delivery_date"`
	TotalQuantity       float64 `json:"total_quantity"`
	TotalAmount         float64 `json:"total_amount"`
	Status              string  `json:"status"`
	ReviewStatus        string  `json:"review_status"`
	PushedToComputation bool    `json:"pushed_to_computation"`
	SalesmanName        string  `json:"salesman_name,omitempty"`

	Key       string              `json:"_rowKey"`
	Lifecycle lifecycle.Lifecycle `json:"_lifecycleStage"`
}

func (r *FlatRow) RowKey() string                      { return r.Key }
func (r *FlatRow) OwnerOrderID() int64                 { return r.OrderID }
func (r *FlatRow) LifecycleStage() lifecycle.Lifecycle { return r.Lifecycle }

// Result 投影结果；RowKeyToOrderID 每次投影重建，供按行选择的批量操作反查订单
type Result struct {
	Mode            Mode             `json:"mode"`
	Rows            []Row            `json:"rows"`
	RowKeyToOrderID map[string]int64 `json:"row_key_to_order_id"`
	Groups          []CardGroup      `json:"groups,omitempty"`
	Timeline        []TimelineRange  `json:"timeline,omitempty"`
}

// OrderRowKey 订单行 key
func OrderRowKey(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}

// ItemRowKey 明细行 key；明细尚无服务端 ID 时用下标
func ItemRowKey(orderID int64, item entity.SalesOrderItem, index int) string {
	if item.ID != 0 {
		return fmt.Sprintf("order-%d-item-%d", orderID, item.ID)
	}
	return fmt.Sprintf("order-%d-idx-%d", orderID, index)
}

// EmptyRowKey 无明细订单的占位行 key
func EmptyRowKey(orderID int64) string {
	return fmt.Sprintf("order-%d-empty", orderID)
}

// ParseRowKey 由任意格式的行 key 还原订单 ID
func ParseRowKey(key string) (int64, bool) {
	if !strings.HasPrefix(key, "order-") {
		id, err := strconv.ParseInt(key, 10, 64)
		return id, err == nil
	}
	rest := strings.TrimPrefix(key, "order-")
	end := strings.IndexByte(rest, '-')
	if end < 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(rest[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	switch suffix := rest[end+1:]; {
	case suffix == "empty",
		strings.HasPrefix(suffix, "item-"),
		strings.HasPrefix(suffix, "idx-"):
		return id, true
	}
	return 0, false
}

// Project 按视图模式投影
func Project(orders []entity.SalesOrder, mode Mode) Result {
	switch mode {
	case ModeDetail:
		return projectDetail(orders)
	case ModeCard:
		res := projectOrders(orders)
		res.Mode = ModeCard
		res.Groups = groupByStage(res.Rows)
		return res
	case ModeTimeline:
		res := projectOrders(orders)
		res.Mode = ModeTimeline
		res.Timeline = timelineRanges(orders)
		return res
	}
	return projectOrders(orders)
}

func projectOrders(orders []entity.SalesOrder) Result {
	res := Result{
		Mode:            ModeOrder,
		Rows:            make([]Row, 0, len(orders)),
		RowKeyToOrderID: make(map[string]int64, len(orders)),
	}
	for i := range orders {
		o := &orders[i]
		row := &OrderRow{
			SalesOrder: *o,
			Key:        OrderRowKey(o.ID),
			Lifecycle:  lifecycle.ForOrder(o),
		}
		res.Rows = append(res.Rows, row)
		res.RowKeyToOrderID[row.Key] = o.ID
	}
	return res
}

func projectDetail(orders []entity.SalesOrder) Result {
	res := Result{
		Mode:            ModeDetail,
		Rows:            make([]Row, 0, len(orders)),
		RowKeyToOrderID: make(map[string]int64),
	}
	for i := range orders {
		o := &orders[i]
		lc := lifecycle.ForOrder(o)
		if len(o.Items) == 0 {
			row := overlayHeader(entity.SalesOrderItem{
				MaterialCode:     PlaceholderMaterialCode,
				RequiredQuantity: 0,
			}, o, lc)
			row.Key = EmptyRowKey(o.ID)
			res.Rows = append(res.Rows, row)
			res.RowKeyToOrderID[row.Key] = o.ID
			continue
		}
		for idx, item := range o.Items {
			row := overlayHeader(item, o, lc)
			row.Key = ItemRowKey(o.ID, item, idx)
			res.Rows = append(res.Rows, row)
			res.RowKeyToOrderID[row.Key] = o.ID
		}
	}
	return res
}

// overlayHeader 复制明细字段后叠加订单头字段；明细交货日期优先，缺省取订单交货日期
func overlayHeader(item entity.SalesOrderItem, o *entity.SalesOrder, lc lifecycle.Lifecycle) *FlatRow {
	row := &FlatRow{SalesOrderItem: item}
	if row.SalesOrderID == 0 {
		row.SalesOrderID = o.ID
	}
	if row.DeliveryDate == "" {
		row.DeliveryDate = o.DeliveryDate
	}
	row.OrderID = o.ID
	row.OrderCode = o.OrderCode
	row.OrderName = o.OrderName
	row.CustomerID = o.CustomerID
	row.CustomerName = o.CustomerName
	row.OrderDate = o.OrderDate
	row.OrderDeliveryDate = o.DeliveryDate
	row.TotalQuantity = o.TotalQuantity
	row.TotalAmount = o.TotalAmount
	row.Status = o.Status
	row.ReviewStatus = o.ReviewStatus
	row.PushedToComputation = bool(o.PushedToComputation)
	row.SalesmanName = o.SalesmanName
	row.Lifecycle = lc
	return row
}

// OrderIDsForKeys 选中行 key 转为去重后的订单 ID，保持首次出现顺序
func (r Result) OrderIDsForKeys(keys []string) ([]int64, []string) {
	seen := make(map[int64]bool, len(keys))
	ids := make([]int64, 0, len(keys))
	var unknown []string
	for _, k := range keys {
		id, ok := r.RowKeyToOrderID[k]
		if !ok {
			id, ok = ParseRowKey(k)
		}
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, unknown
}
