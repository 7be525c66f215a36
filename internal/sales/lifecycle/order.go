package lifecycle

import "github.com/bitfantasy/nimo-sales/internal/sales/entity"

// ForOrder 对订单分类，子阶段由明细汇总
func ForOrder(o *entity.SalesOrder) Lifecycle {
	if o == nil {
		return Classify("", "")
	}
	facts := Facts{PushedToComputation: bool(o.PushedToComputation)}
	for _, it := range o.Items {
		facts.RequiredQuantity += it.RequiredQuantity
		facts.DeliveredQuantity += it.DeliveredQuantity
		if it.WorkOrderID != 0 || it.WorkOrderCode != "" {
			facts.HasWorkOrder = true
		}
	}
	return ClassifyWith(o.Status, o.ReviewStatus, facts)
}
