package entity

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// 订单状态（后端存在中英文两套写法，统一由 lifecycle 包归一化）
const (
	SOStatusDraft         = "DRAFT"
	SOStatusPendingReview = "PENDING_REVIEW"
	SOStatusAudited       = "AUDITED"
	SOStatusConfirmed     = "CONFIRMED"
	SOStatusEffective     = "EFFECTIVE"
	SOStatusInProgress    = "IN_PROGRESS"
	SOStatusDelivered     = "DELIVERED"
	SOStatusCompleted     = "COMPLETED"
	SOStatusRejected      = "REJECTED"
	SOStatusCancelled     = "CANCELLED"
)

// 审核状态
const (
	ReviewPending  = "PENDING"
	ReviewApproved = "APPROVED"
	ReviewRejected = "REJECTED"
)

// Flag 后端的布尔标记，可能是 true/false、0/1、"true" 或 null
type Flag bool

func (f *Flag) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	switch strings.ToLower(s) {
	case "", "null", "false", "0", "no":
		*f = false
		return nil
	case "true", "1", "yes":
		*f = true
		return nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		*f = n != 0
		return nil
	}
	*f = false
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// SalesOrder 销售订单
type SalesOrder struct {
	ID                  int64            `json:"id"`
	UUID                string           `json:"uuid,omitempty"`
	OrderCode           string           `json:"order_code"`
	OrderName           string           `json:"order_name,omitempty"`
	CustomerID          int64            `json:"customer_id"`
	CustomerName        string           `json:"customer_name"`
	CustomerContact     string           `json:"customer_contact,omitempty"`
	CustomerPhone       string           `json:"customer_phone,omitempty"`
	OrderDate           string           `json:"order_date"`
	DeliveryDate        string           `json:"delivery_date"`
	TotalQuantity       float64          `json:"total_quantity"`
	TotalAmount         float64          `json:"total_amount"`
	Status              string           `json:"status"`
	ReviewStatus        string           `json:"review_status"`
	SubmitTime          string           `json:"submit_time,omitempty"`
	ReviewerName        string           `json:"reviewer_name,omitempty"`
	ReviewTime          string           `json:"review_time,omitempty"`
	ReviewRemarks       string           `json:"review_remarks,omitempty"`
	SalesmanName        string           `json:"salesman_name,omitempty"`
	ShippingAddress     string           `json:"shipping_address,omitempty"`
	ShippingMethod      string           `json:"shipping_method,omitempty"`
	PaymentTerms        string           `json:"payment_terms,omitempty"`
	Notes               string           `json:"notes,omitempty"`
	PushedToComputation Flag             `json:"pushed_to_computation"`
	ComputationID       int64            `json:"computation_id,omitempty"`
	ComputationCode     string           `json:"computation_code,omitempty"`
	CreatedAt           string           `json:"created_at,omitempty"`
	UpdatedAt           string           `json:"updated_at,omitempty"`
	DurationInfo        json.RawMessage  `json:"duration_info,omitempty"`
	Items               []SalesOrderItem `json:"items"`
}

// SalesOrderItem 销售订单明细，已交货/剩余数量由后端计算
type SalesOrderItem struct {
	ID                int64   `json:"id,omitempty"`
	SalesOrderID      int64   `json:"sales_order_id,omitempty"`
	MaterialID        int64   `json:"material_id"`
	MaterialCode      string  `json:"material_code"`
	MaterialName      string  `json:"material_name"`
	MaterialSpec      string  `json:"material_spec,omitempty"`
	MaterialUnit      string  `json:"material_unit,omitempty"`
	RequiredQuantity  float64 `json:"required_quantity"`
	UnitPrice         float64 `json:"unit_price"`
	TaxRate           float64 `json:"tax_rate"`
	ItemAmount        float64 `json:"item_amount"`
	DeliveryDate      string  `json:"delivery_date,omitempty"`
	DeliveredQuantity float64 `json:"delivered_quantity"`
	RemainingQuantity float64 `json:"remaining_quantity"`
	DeliveryStatus    string  `json:"delivery_status,omitempty"`
	WorkOrderID       int64   `json:"work_order_id,omitempty"`
	WorkOrderCode     string  `json:"work_order_code,omitempty"`
	Notes             string  `json:"notes,omitempty"`
}

// BulkDeleteResult 批量删除结果
type BulkDeleteResult struct {
	SuccessCount int               `json:"success_count"`
	FailedCount  int               `json:"failed_count"`
	FailedItems  []BulkDeleteFault `json:"failed_items"`
}

type BulkDeleteFault struct {
	ID     int64  `json:"id"`
	Reason string `json:"reason"`
}
