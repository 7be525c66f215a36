package entity

import (
	"encoding/json"
	"time"
)

// PushTarget 下推目标
type PushTarget string

const (
	TargetComputation         PushTarget = "computation"
	TargetProductionPlan      PushTarget = "production_plan"
	TargetWorkOrder           PushTarget = "work_order"
	TargetShipmentNotice      PushTarget = "shipment_notice"
	TargetInvoice             PushTarget = "invoice"
	TargetWithdrawComputation PushTarget = "withdraw_computation"
)

// AllTargets 按菜单顺序排列
var AllTargets = []PushTarget{
	TargetComputation,
	TargetProductionPlan,
	TargetWorkOrder,
	TargetShipmentNotice,
	TargetInvoice,
	TargetWithdrawComputation,
}

func ParsePushTarget(s string) (PushTarget, bool) {
	for _, t := range AllTargets {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Label 菜单文案
func (t PushTarget) Label() string {
	switch t {
	case TargetComputation:
		return "下推需求计算"
	case TargetProductionPlan:
		return "直推生产计划"
	case TargetWorkOrder:
		return "直推工单"
	case TargetShipmentNotice:
		return "下推发货通知单"
	case TargetInvoice:
		return "下推销售发票"
	case TargetWithdrawComputation:
		return "撤回需求计算"
	}
	return string(t)
}

// HasPreview 发货通知与发票只需确认，不拉取预览
func (t PushTarget) HasPreview() bool {
	switch t {
	case TargetComputation, TargetProductionPlan, TargetWorkOrder:
		return true
	}
	return false
}

// PushPreview 下推预览，仅用于确认弹窗，不落库
type PushPreview struct {
	Summary         string        `json:"summary"`
	Items           []PreviewItem `json:"items"`
	PlanNamePreview string        `json:"plan_name_preview,omitempty"`
	Tip             string        `json:"tip,omitempty"`
}

type PreviewItem struct {
	MaterialCode string  `json:"material_code"`
	MaterialName string  `json:"material_name"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit,omitempty"`
	Action       string  `json:"action,omitempty"`
	Note         string  `json:"note,omitempty"`
}

// PushResult 下推结果，字段随目标不同，保留原始报文
type PushResult struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	TargetCode string          `json:"target_code,omitempty"`
	Raw        json.RawMessage `json:"raw,omitempty"`
}

// PushLog 下推审计记录
type PushLog struct {
	ID         string    `json:"id" gorm:"primaryKey;size:36"`
	OrderID    int64     `json:"order_id" gorm:"not null;index"`
	OrderCode  string    `json:"order_code" gorm:"size:50"`
	Target     string    `json:"target" gorm:"size:32;not null"`
	Outcome    string    `json:"outcome" gorm:"size:16;not null"` // success / failure
	Message    string    `json:"message" gorm:"type:text"`
	TargetCode string    `json:"target_code" gorm:"size:64"`
	OperatorID string    `json:"operator_id" gorm:"size:64"`
	CreatedAt  time.Time `json:"created_at"`
}

func (PushLog) TableName() string {
	return "sales_push_logs"
}
